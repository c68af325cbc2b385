package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/janus/internal/email"
	"github.com/dropDatabas3/janus/internal/metrics"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	tokens "github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/store/core"
)

const oneTimeCodeDigits = 6

// IssueOneTimeCode stages a reason-tagged code and hands delivery off to a
// goroutine. Delivery failure never fails issuance; it only logs.
func (s *service) IssueOneTimeCode(ctx context.Context, userID string, reason core.OneTimeCodeReason, ip, userAgent string) (*core.OneTimeCode, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("policy.issue_code"))

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	code, err := tokens.GenerateDigits(oneTimeCodeDigits)
	if err != nil {
		return nil, err
	}
	otc := &core.OneTimeCode{
		Meta:      core.Meta{ID: uuid.NewString()},
		Code:      code,
		Reason:    reason,
		IPAddress: ip,
		UserAgent: userAgent,
		UserID:    userID,
	}
	if err := s.store.CreateOneTimeCode(ctx, otc); err != nil {
		return nil, err
	}
	metrics.OneTimeCodesIssued.Inc()

	ch, dest := s.destination(u, reason)
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.sender.SendCode(sendCtx, ch, dest, code); err != nil {
			log.Error("one-time code delivery failed",
				logger.Err(err), logger.UserID(userID), logger.Reason(string(reason)))
		}
	}()

	log.Info("one-time code issued", logger.UserID(userID), logger.Reason(string(reason)))
	return otc, nil
}

// destination picks the channel and address a code should reach. Contact
// change confirmations go to the pending value being verified.
func (s *service) destination(u *core.User, reason core.OneTimeCodeReason) (email.Channel, string) {
	switch reason {
	case core.ReasonPhoneNumber:
		if u.UnverifiedPhoneNumber != nil && u.UnverifiedCountryPhoneCode != nil {
			return email.ChannelSMS, fmt.Sprintf("+%d%s", *u.UnverifiedCountryPhoneCode, *u.UnverifiedPhoneNumber)
		}
		return email.ChannelSMS, fmt.Sprintf("+%d%s", u.CountryPhoneCode, u.PhoneNumber)
	case core.ReasonEmail:
		if u.UnverifiedEmail != nil {
			return email.ChannelEmail, *u.UnverifiedEmail
		}
		return email.ChannelEmail, u.Email
	default:
		return email.ChannelEmail, u.Email
	}
}

// VerifyOneTimeCode consumes the code exactly once. Mismatches are counted
// under version CAS so concurrent guesses cannot dodge the attempt cap.
func (s *service) VerifyOneTimeCode(ctx context.Context, codeID, presented string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("policy.verify_code"))

	for attempt := 0; attempt < casRetries; attempt++ {
		otc, err := s.store.GetOneTimeCode(ctx, codeID)
		if err != nil {
			return err
		}
		if otc.IsUsed {
			return ErrCodeAlreadyUsed
		}
		if otc.FailedAttempts >= s.cfg.CodeMaxAttempts {
			return ErrCodeInvalidated
		}
		if time.Since(otc.CreatedAt) > s.cfg.CodeTTL {
			return ErrCodeExpired
		}

		if !tokens.ConstantTimeEquals(otc.Code, presented) {
			otc.FailedAttempts++
			capped := otc.FailedAttempts >= s.cfg.CodeMaxAttempts
			err = s.store.SaveOneTimeCode(ctx, otc)
			if err == nil {
				if capped {
					log.Warn("one-time code invalidated after too many attempts",
						logger.UserID(otc.UserID), logger.ID(codeID))
					return ErrCodeInvalidated
				}
				return ErrCodeMismatch
			}
			if !errors.Is(err, core.ErrVersionConflict) {
				return err
			}
			metrics.VersionConflictRetries.Inc()
			continue
		}

		otc.IsUsed = true
		err = s.store.SaveOneTimeCode(ctx, otc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return err
		}
		metrics.VersionConflictRetries.Inc()
	}
	return core.ErrConcurrentModification
}
