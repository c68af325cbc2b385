package policy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/janus/internal/metrics"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// Authenticate implements the lockout discipline: a locked account fails
// without consuming an attempt, a failed verification counts one, crossing
// the threshold sets the lockout and resets the counter, and success resets
// the counter to zero.
func (s *service) Authenticate(ctx context.Context, identifier, plainPassword, ip, userAgent string) (*core.Login, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("policy.authenticate"))

	u, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now().UTC()
	if u.BlockedAt != nil {
		return nil, ErrAccountBlocked
	}
	if u.LockoutEndsAt != nil && u.LockoutEndsAt.After(now) {
		log.Warn("attempt on locked account", logger.UserID(u.ID))
		return nil, ErrAccountLocked
	}

	if !s.hasher.Verify(plainPassword, u.PasswordHash) {
		if err := s.countFailure(ctx, u.ID); err != nil {
			log.Error("failed to record failed attempt", logger.Err(err), logger.UserID(u.ID))
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.resetCounter(ctx, u.ID); err != nil {
		log.Error("failed to reset lockout counter", logger.Err(err), logger.UserID(u.ID))
	}
	return s.sessions.StartLogin(ctx, u.ID, ip, userAgent, false)
}

func (s *service) lookup(ctx context.Context, identifier string) (*core.User, error) {
	if strings.Contains(identifier, "@") {
		return s.store.FindUserByEmail(ctx, identifier)
	}
	return s.store.FindUserByUsername(ctx, identifier)
}

// countFailure increments the counter under version CAS so concurrent
// failures never under-count.
func (s *service) countFailure(ctx context.Context, userID string) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		u.FailedLoginAttempts++
		if u.FailedLoginAttempts >= s.cfg.LockoutThreshold {
			until := time.Now().UTC().Add(s.cfg.LockoutDuration)
			u.LockoutEndsAt = &until
			u.FailedLoginAttempts = 0
			metrics.Lockouts.Inc()
			logger.From(ctx).Warn("account locked",
				logger.UserID(userID),
				logger.String("until", until.Format(time.RFC3339)),
			)
		}
		err = s.store.SaveUser(ctx, u)
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

func (s *service) resetCounter(ctx context.Context, userID string) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u.FailedLoginAttempts == 0 && u.LockoutEndsAt == nil {
			return nil
		}
		u.FailedLoginAttempts = 0
		u.LockoutEndsAt = nil
		err = s.store.SaveUser(ctx, u)
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
