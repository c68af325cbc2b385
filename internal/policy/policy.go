// Package policy enforces account security around session creation and
// sensitive account changes: failed-login lockout, TOTP verification with
// replay protection, one-time codes, and signup verification/promotion.
package policy

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/janus/internal/email"
	"github.com/dropDatabas3/janus/internal/security/password"
	"github.com/dropDatabas3/janus/internal/session"
	"github.com/dropDatabas3/janus/internal/store/core"
)

var (
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountBlocked     = errors.New("account blocked")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTotpNotEnrolled = errors.New("totp not enrolled")
	ErrTotpInvalid     = errors.New("totp code invalid")
	ErrTotpReplayed    = errors.New("totp code replayed")

	ErrCodeExpired     = errors.New("one-time code expired")
	ErrCodeAlreadyUsed = errors.New("one-time code already used")
	ErrCodeMismatch    = errors.New("one-time code mismatch")
	ErrCodeInvalidated = errors.New("one-time code invalidated")

	ErrSignupExpired  = errors.New("signup request expired")
	ErrSignupConsumed = errors.New("signup request already consumed")
)

const casRetries = 3

// Service gates session creation and identity mutation.
type Service interface {
	// Authenticate verifies credentials under the lockout discipline and
	// starts a login on success.
	Authenticate(ctx context.Context, identifier, plainPassword, ip, userAgent string) (*core.Login, error)

	// VerifyTotp checks a time-based code against the user's secret, moving
	// the login's replay floor forward on success.
	VerifyTotp(ctx context.Context, loginID, code string) error

	// IssueOneTimeCode creates and (fire-and-forget) delivers a reason-tagged
	// code for a sensitive change.
	IssueOneTimeCode(ctx context.Context, userID string, reason core.OneTimeCodeReason, ip, userAgent string) (*core.OneTimeCode, error)

	// VerifyOneTimeCode consumes the code or counts the failure.
	VerifyOneTimeCode(ctx context.Context, codeID, presented string) error

	// StartSignup stages a registration with verification codes.
	StartSignup(ctx context.Context, p SignupParams) (*core.SignupRequest, error)

	// PromoteSignupRequest verifies the codes and promotes the staged signup
	// to a User exactly once.
	PromoteSignupRequest(ctx context.Context, signupID, emailCode, smsCode string) (*core.User, error)
}

type SignupParams struct {
	Username         string
	Email            string
	PhoneNumber      string
	CountryCode      string
	CountryPhoneCode int
	Password         string
	FirstName        string
	LastName         string
	IP               string
	UserAgent        string
	WithSMS          bool
}

type Config struct {
	LockoutThreshold  int
	LockoutDuration   time.Duration
	CodeTTL           time.Duration
	CodeMaxAttempts   int
	SignupTTL         time.Duration
	SignupMaxAttempts int
	TotpWindowSteps   int
}

type Deps struct {
	Store    core.Store
	Hasher   password.Hasher
	Sender   email.Sender
	Sessions session.Manager
	Config   Config
}

type service struct {
	store    core.Store
	hasher   password.Hasher
	sender   email.Sender
	sessions session.Manager
	cfg      Config
}

func NewService(d Deps) Service {
	cfg := d.Config
	if cfg.LockoutThreshold <= 0 {
		cfg.LockoutThreshold = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.CodeMaxAttempts <= 0 {
		cfg.CodeMaxAttempts = 5
	}
	if cfg.SignupTTL <= 0 {
		cfg.SignupTTL = 24 * time.Hour
	}
	if cfg.SignupMaxAttempts <= 0 {
		cfg.SignupMaxAttempts = 5
	}
	if cfg.TotpWindowSteps <= 0 {
		cfg.TotpWindowSteps = 1
	}
	return &service{
		store:    d.Store,
		hasher:   d.Hasher,
		sender:   d.Sender,
		sessions: d.Sessions,
		cfg:      cfg,
	}
}
