package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/janus/internal/email"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	tokens "github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/store/core"
)

var ErrCountryRegistration = errors.New("registration not allowed for country")

// StartSignup stages a registration. Nothing touches the users table until
// the verification codes are confirmed by PromoteSignupRequest.
func (s *service) StartSignup(ctx context.Context, p SignupParams) (*core.SignupRequest, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("policy.signup"))

	country, err := s.store.GetCountry(ctx, p.CountryCode)
	if err != nil {
		return nil, err
	}
	if !country.AllowIPRegistration {
		return nil, ErrCountryRegistration
	}
	if p.WithSMS && !country.AllowPhoneNumberRegistration {
		return nil, ErrCountryRegistration
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return nil, err
	}
	emailCode, err := tokens.GenerateDigits(oneTimeCodeDigits)
	if err != nil {
		return nil, err
	}
	var smsCode *string
	if p.WithSMS {
		c, err := tokens.GenerateDigits(oneTimeCodeDigits)
		if err != nil {
			return nil, err
		}
		smsCode = &c
	}

	req := &core.SignupRequest{
		Meta:                  core.Meta{ID: uuid.NewString()},
		IPAddress:             p.IP,
		UserAgent:             p.UserAgent,
		CountryPhoneCode:      p.CountryPhoneCode,
		PhoneNumber:           p.PhoneNumber,
		Email:                 p.Email,
		Username:              p.Username,
		PasswordHash:          hash,
		FirstName:             p.FirstName,
		LastName:              p.LastName,
		EmailVerificationCode: emailCode,
		SmsVerificationCode:   smsCode,
		ExpiresAt:             time.Now().UTC().Add(s.cfg.SignupTTL),
		CountryCode:           p.CountryCode,
	}
	if err := s.store.CreateSignupRequest(ctx, req); err != nil {
		return nil, err
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.sender.SendCode(sendCtx, email.ChannelEmail, req.Email, emailCode); err != nil {
			log.Error("signup email code delivery failed", logger.Err(err), logger.ID(req.ID))
		}
		if smsCode != nil {
			dest := fmt.Sprintf("+%d%s", req.CountryPhoneCode, req.PhoneNumber)
			if err := s.sender.SendCode(sendCtx, email.ChannelSMS, dest, *smsCode); err != nil {
				log.Error("signup sms code delivery failed", logger.Err(err), logger.ID(req.ID))
			}
		}
	}()

	log.Info("signup staged", logger.ID(req.ID), logger.String("username", req.Username))
	return req, nil
}

// PromoteSignupRequest turns a verified staging record into a User exactly
// once. The consumption mark is taken under version CAS before the user row
// is created, so concurrent promotions produce a single user.
func (s *service) PromoteSignupRequest(ctx context.Context, signupID, emailCode, smsCode string) (*core.User, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("policy.promote"))

	req, err := s.consumeSignup(ctx, signupID, emailCode, smsCode)
	if err != nil {
		return nil, err
	}

	u := &core.User{
		Meta:             core.Meta{ID: uuid.NewString()},
		Username:         req.Username,
		PasswordHash:     req.PasswordHash,
		CountryPhoneCode: req.CountryPhoneCode,
		PhoneNumber:      req.PhoneNumber,
		Email:            req.Email,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		CountryCode:      req.CountryCode,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	req.CreatedUserID = &u.ID
	if err := s.store.SaveSignupRequest(ctx, req); err != nil {
		log.Error("failed to link created user to signup", logger.Err(err), logger.ID(signupID))
	}

	log.Info("signup promoted", logger.ID(signupID), logger.UserID(u.ID))
	return u, nil
}

// consumeSignup verifies the codes and stamps ConsumedAt, counting mismatches
// toward the attempt cap.
func (s *service) consumeSignup(ctx context.Context, signupID, emailCode, smsCode string) (*core.SignupRequest, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		req, err := s.store.GetSignupRequest(ctx, signupID)
		if err != nil {
			return nil, err
		}
		if req.ConsumedAt != nil {
			return nil, ErrSignupConsumed
		}
		if time.Now().UTC().After(req.ExpiresAt) {
			return nil, ErrSignupExpired
		}
		if req.FailedAttempts >= s.cfg.SignupMaxAttempts {
			return nil, ErrCodeInvalidated
		}

		match := tokens.ConstantTimeEquals(req.EmailVerificationCode, emailCode)
		if req.SmsVerificationCode != nil {
			match = tokens.ConstantTimeEquals(*req.SmsVerificationCode, smsCode) && match
		}
		if !match {
			req.FailedAttempts++
			capped := req.FailedAttempts >= s.cfg.SignupMaxAttempts
			err = s.store.SaveSignupRequest(ctx, req)
			if err == nil {
				if capped {
					return nil, ErrCodeInvalidated
				}
				return nil, ErrCodeMismatch
			}
			if !errors.Is(err, core.ErrVersionConflict) {
				return nil, err
			}
			continue
		}

		now := time.Now().UTC()
		req.ConsumedAt = &now
		err = s.store.SaveSignupRequest(ctx, req)
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, core.ErrConcurrentModification
}
