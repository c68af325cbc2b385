package email

import (
	"context"

	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// DevLog echoes codes to the log instead of delivering them. Dev only.
type DevLog struct{}

var _ Sender = DevLog{}

func (DevLog) SendCode(ctx context.Context, ch Channel, destination, code string) error {
	logger.From(ctx).Info("verification code (dev echo)",
		logger.String("channel", string(ch)),
		logger.String("destination", destination),
		logger.String("code", code),
	)
	return nil
}
