package email

import (
	"context"
	"fmt"

	mail "github.com/go-mail/mail"
)

// SMTPConfig configures the go-mail dialer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP sends verification codes over SMTP. SMS destinations are not routable
// over this sender; wiring an SMS gateway is a deployment concern.
type SMTP struct {
	dialer *mail.Dialer
	from   string
}

var _ Sender = (*SMTP)(nil)

func NewSMTP(cfg SMTPConfig) *SMTP {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTP{dialer: d, from: cfg.From}
}

func (s *SMTP) SendCode(ctx context.Context, ch Channel, destination, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ch != ChannelEmail {
		return fmt.Errorf("email: channel %q not supported by SMTP sender", ch)
	}
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", destination)
	m.SetHeader("Subject", "Your verification code")
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is %s. It expires shortly.", code))
	return s.dialer.DialAndSend(m)
}
