package policy

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/security/totp"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// VerifyTotp validates a time-based code for the login's user. The login
// record carries the last accepted time-step counter; codes at or below it
// are rejected as replays even when numerically correct.
func (s *service) VerifyTotp(ctx context.Context, loginID, code string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("policy.totp"))

	for attempt := 0; attempt < casRetries; attempt++ {
		l, err := s.store.GetLogin(ctx, loginID)
		if err != nil {
			return err
		}
		u, err := s.store.GetUser(ctx, l.UserID)
		if err != nil {
			return err
		}
		if u.TotpSecret == nil {
			return ErrTotpNotEnrolled
		}
		secret, err := totp.DecodeSecret(*u.TotpSecret)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		ok, counter := totp.Verify(secret, code, now, s.cfg.TotpWindowSteps, l.TotpWindow)
		if !ok {
			// Distinguish a replay from a plainly wrong code: retry the
			// verification without the replay floor.
			if l.TotpWindow != nil {
				if okNoFloor, _ := totp.Verify(secret, code, now, s.cfg.TotpWindowSteps, nil); okNoFloor {
					log.Warn("totp replay rejected", logger.LoginID(loginID))
					return ErrTotpReplayed
				}
			}
			return ErrTotpInvalid
		}

		l.TotpWindow = &counter
		err = s.store.SaveLogin(ctx, l)
		if err == nil {
			return nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return err
		}
	}
	return core.ErrConcurrentModification
}
