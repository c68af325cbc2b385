// Package email delivers one-time verification codes. Delivery is
// fire-and-forget from the engine's perspective: a failed send is logged and
// never rolls back the code that was already durably created.
package email

import "context"

// Channel is the delivery medium of a code.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Sender is the notification collaborator.
type Sender interface {
	SendCode(ctx context.Context, ch Channel, destination, code string) error
}
