// Package session manages first-party login sessions: creation, activity
// touch, and revocation. Validity is a pure function every other engine
// checks without mutating anything.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/store/core"
)

var (
	ErrSessionExpired = errors.New("session expired")
	ErrAlreadyEnded   = errors.New("login already ended")
)

// DefaultWindow is the staleness limit on a login with no activity.
const DefaultWindow = 30 * 24 * time.Hour

const casRetries = 3

// Valid reports whether the login can still be used at now: never ended, and
// last activity (or creation) within the window.
func Valid(l *core.Login, now time.Time, window time.Duration) bool {
	if l == nil || l.EndedAt != nil {
		return false
	}
	if window <= 0 {
		window = DefaultWindow
	}
	last := l.CreatedAt
	if l.UpdatedAt != nil && l.UpdatedAt.After(last) {
		last = *l.UpdatedAt
	}
	return now.Sub(last) <= window
}

// Manager creates and mutates Login records. It is the only component allowed
// to write them.
type Manager interface {
	StartLogin(ctx context.Context, userID, ip, userAgent string, persistent bool) (*core.Login, error)
	Touch(ctx context.Context, loginID string) (*core.Login, error)
	EndLogin(ctx context.Context, loginID string, cause core.LoginEndCause, ip string) error
}

type Deps struct {
	Store  core.Store
	Window time.Duration
}

type manager struct {
	store  core.Store
	window time.Duration
}

func NewManager(d Deps) Manager {
	w := d.Window
	if w <= 0 {
		w = DefaultWindow
	}
	return &manager{store: d.Store, window: w}
}

func (m *manager) StartLogin(ctx context.Context, userID, ip, userAgent string, persistent bool) (*core.Login, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("session.start"))

	l := &core.Login{
		Meta:         core.Meta{ID: uuid.NewString()},
		IPAddress:    ip,
		UserAgent:    userAgent,
		IsPersistent: persistent,
		Successful:   true,
		UserID:       userID,
	}
	if err := m.store.CreateLogin(ctx, l); err != nil {
		log.Error("failed to create login", logger.Err(err), logger.UserID(userID))
		return nil, err
	}
	log.Info("login started", logger.LoginID(l.ID), logger.UserID(userID))
	return l, nil
}

func (m *manager) Touch(ctx context.Context, loginID string) (*core.Login, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		l, err := m.store.GetLogin(ctx, loginID)
		if err != nil {
			return nil, err
		}
		if !Valid(l, time.Now().UTC(), m.window) {
			return nil, ErrSessionExpired
		}
		now := time.Now().UTC()
		l.UpdatedAt = &now
		err = m.store.SaveLogin(ctx, l)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, core.ErrConcurrentModification
}

func (m *manager) EndLogin(ctx context.Context, loginID string, cause core.LoginEndCause, ip string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("session.end"))

	for attempt := 0; attempt < casRetries; attempt++ {
		l, err := m.store.GetLogin(ctx, loginID)
		if err != nil {
			return err
		}
		if l.EndedAt != nil {
			return ErrAlreadyEnded
		}
		now := time.Now().UTC()
		l.EndedAt = &now
		l.EndCause = cause
		if ip != "" {
			l.LogoutIPAddress = &ip
		}
		err = m.store.SaveLogin(ctx, l)
		if err == nil {
			log.Info("login ended", logger.LoginID(loginID), logger.Reason(string(cause)))
			return nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return err
		}
	}
	return core.ErrConcurrentModification
}
