package policy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/email"
	"github.com/dropDatabas3/janus/internal/security/password"
	"github.com/dropDatabas3/janus/internal/security/totp"
	"github.com/dropDatabas3/janus/internal/session"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

// recordingSender captures deliveries instead of sending them.
type recordingSender struct {
	mu    sync.Mutex
	sends []string
}

func (r *recordingSender) SendCode(ctx context.Context, ch email.Channel, destination, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, destination)
	return nil
}

type fixture struct {
	store  *memory.Store
	svc    Service
	sender *recordingSender
	hasher password.Hasher
	user   *core.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	hasher := password.Argon2id{Params: password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}}
	sender := &recordingSender{}

	require.NoError(t, st.CreateCountry(ctx, &core.Country{
		Code: "AR", Name: "Argentina", PhoneCode: 54,
		AllowIPRegistration: true, AllowPhoneNumberRegistration: true,
	}))

	hash, err := hasher.Hash("s3cret-pass")
	require.NoError(t, err)
	u := &core.User{
		Meta: core.Meta{ID: "u1"}, Username: "ada", Email: "ada@example.com",
		PasswordHash: hash, CountryCode: "AR",
	}
	require.NoError(t, st.CreateUser(ctx, u))

	sessions := session.NewManager(session.Deps{Store: st})
	svc := NewService(Deps{
		Store: st, Hasher: hasher, Sender: sender, Sessions: sessions,
		Config: Config{LockoutThreshold: 3, LockoutDuration: 15 * time.Minute},
	})
	return &fixture{store: st, svc: svc, sender: sender, hasher: hasher, user: u}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials start a login", func(t *testing.T) {
		f := newFixture(t)
		l, err := f.svc.Authenticate(ctx, "ada", "s3cret-pass", "10.0.0.1", "agent")
		require.NoError(t, err)
		assert.Equal(t, "u1", l.UserID)
		assert.True(t, l.Successful)
	})

	t.Run("email works as identifier", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Authenticate(ctx, "ada@example.com", "s3cret-pass", "10.0.0.1", "agent")
		assert.NoError(t, err)
	})

	t.Run("unknown identifier reports invalid credentials", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Authenticate(ctx, "nobody", "whatever", "10.0.0.1", "agent")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("threshold locks the account and resets the counter", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 3; i++ {
			_, err := f.svc.Authenticate(ctx, "ada", "wrong", "10.0.0.1", "agent")
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		}
		u, err := f.store.GetUser(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, u.LockoutEndsAt)
		assert.Zero(t, u.FailedLoginAttempts)

		// A locked account fails even with the right password, and the
		// attempt is not counted.
		_, err = f.svc.Authenticate(ctx, "ada", "s3cret-pass", "10.0.0.1", "agent")
		assert.ErrorIs(t, err, ErrAccountLocked)
		u, err = f.store.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, u.FailedLoginAttempts)
	})

	t.Run("expired lockout admits again", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.store.GetUser(ctx, "u1")
		require.NoError(t, err)
		past := time.Now().UTC().Add(-time.Minute)
		u.LockoutEndsAt = &past
		require.NoError(t, f.store.SaveUser(ctx, u))

		_, err = f.svc.Authenticate(ctx, "ada", "s3cret-pass", "10.0.0.1", "agent")
		assert.NoError(t, err)
	})

	t.Run("success resets the failure counter", func(t *testing.T) {
		f := newFixture(t)
		_, _ = f.svc.Authenticate(ctx, "ada", "wrong", "10.0.0.1", "agent")
		_, err := f.svc.Authenticate(ctx, "ada", "s3cret-pass", "10.0.0.1", "agent")
		require.NoError(t, err)
		u, err := f.store.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, u.FailedLoginAttempts)
	})

	t.Run("blocked account refused", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.store.GetUser(ctx, "u1")
		require.NoError(t, err)
		now := time.Now().UTC()
		u.BlockedAt = &now
		require.NoError(t, f.store.SaveUser(ctx, u))
		_, err = f.svc.Authenticate(ctx, "ada", "s3cret-pass", "10.0.0.1", "agent")
		assert.ErrorIs(t, err, ErrAccountBlocked)
	})
}

func TestVerifyTotp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	raw, b32, err := totp.GenerateSecret()
	require.NoError(t, err)
	u, err := f.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	u.TotpSecret = &b32
	require.NoError(t, f.store.SaveUser(ctx, u))

	l, err := f.svc.Authenticate(ctx, "ada", "s3cret-pass", "10.0.0.1", "agent")
	require.NoError(t, err)

	code := totp.Generate(raw, time.Now().UTC())

	require.NoError(t, f.svc.VerifyTotp(ctx, l.ID, code))

	// The same code is a replay within the same step.
	err = f.svc.VerifyTotp(ctx, l.ID, code)
	assert.ErrorIs(t, err, ErrTotpReplayed)

	// A wrong code is just invalid.
	err = f.svc.VerifyTotp(ctx, l.ID, "000000")
	assert.ErrorIs(t, err, ErrTotpInvalid)
}

func TestVerifyTotpNotEnrolled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l, err := f.svc.Authenticate(ctx, "ada", "s3cret-pass", "10.0.0.1", "agent")
	require.NoError(t, err)
	err = f.svc.VerifyTotp(ctx, l.ID, "123456")
	assert.ErrorIs(t, err, ErrTotpNotEnrolled)
}

func TestOneTimeCodes(t *testing.T) {
	ctx := context.Background()

	t.Run("correct code consumed once", func(t *testing.T) {
		f := newFixture(t)
		otc, err := f.svc.IssueOneTimeCode(ctx, "u1", core.ReasonPassword, "10.0.0.1", "agent")
		require.NoError(t, err)

		require.NoError(t, f.svc.VerifyOneTimeCode(ctx, otc.ID, otc.Code))
		err = f.svc.VerifyOneTimeCode(ctx, otc.ID, otc.Code)
		assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
	})

	t.Run("mismatches count toward the cap", func(t *testing.T) {
		f := newFixture(t)
		otc, err := f.svc.IssueOneTimeCode(ctx, "u1", core.ReasonEmail, "10.0.0.1", "agent")
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			err = f.svc.VerifyOneTimeCode(ctx, otc.ID, "999999")
			assert.ErrorIs(t, err, ErrCodeMismatch)
		}
		// Fifth miss crosses the default cap of five.
		err = f.svc.VerifyOneTimeCode(ctx, otc.ID, "999999")
		assert.ErrorIs(t, err, ErrCodeInvalidated)

		// Even the right code is refused once invalidated.
		err = f.svc.VerifyOneTimeCode(ctx, otc.ID, otc.Code)
		assert.ErrorIs(t, err, ErrCodeInvalidated)
	})

	t.Run("expired code refused", func(t *testing.T) {
		f := newFixture(t)
		otc, err := f.svc.IssueOneTimeCode(ctx, "u1", core.ReasonPassword, "10.0.0.1", "agent")
		require.NoError(t, err)

		stored, err := f.store.GetOneTimeCode(ctx, otc.ID)
		require.NoError(t, err)
		stored.CreatedAt = time.Now().UTC().Add(-11 * time.Minute)
		require.NoError(t, f.store.SaveOneTimeCode(ctx, stored))

		err = f.svc.VerifyOneTimeCode(ctx, otc.ID, otc.Code)
		assert.ErrorIs(t, err, ErrCodeExpired)
	})
}

func TestSignup(t *testing.T) {
	ctx := context.Background()

	params := func() SignupParams {
		return SignupParams{
			Username: "grace", Email: "grace@example.com", Password: "initial-pass",
			CountryCode: "AR", FirstName: "Grace", LastName: "Hopper",
			IP: "10.0.0.1", UserAgent: "agent",
		}
	}

	t.Run("promotion creates the user once", func(t *testing.T) {
		f := newFixture(t)
		sr, err := f.svc.StartSignup(ctx, params())
		require.NoError(t, err)

		u, err := f.svc.PromoteSignupRequest(ctx, sr.ID, sr.EmailVerificationCode, "")
		require.NoError(t, err)
		assert.Equal(t, "grace", u.Username)
		assert.True(t, f.hasher.Verify("initial-pass", u.PasswordHash))

		// Promotion is idempotent in effect: replays are refused.
		_, err = f.svc.PromoteSignupRequest(ctx, sr.ID, sr.EmailVerificationCode, "")
		assert.ErrorIs(t, err, ErrSignupConsumed)

		stored, err := f.store.GetSignupRequest(ctx, sr.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.CreatedUserID)
		assert.Equal(t, u.ID, *stored.CreatedUserID)
	})

	t.Run("wrong code counts and eventually invalidates", func(t *testing.T) {
		f := newFixture(t)
		sr, err := f.svc.StartSignup(ctx, params())
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			_, err = f.svc.PromoteSignupRequest(ctx, sr.ID, "000000", "")
			assert.ErrorIs(t, err, ErrCodeMismatch)
		}
		_, err = f.svc.PromoteSignupRequest(ctx, sr.ID, "000000", "")
		assert.ErrorIs(t, err, ErrCodeInvalidated)
	})

	t.Run("expired signup refused", func(t *testing.T) {
		f := newFixture(t)
		sr, err := f.svc.StartSignup(ctx, params())
		require.NoError(t, err)

		stored, err := f.store.GetSignupRequest(ctx, sr.ID)
		require.NoError(t, err)
		stored.ExpiresAt = time.Now().UTC().Add(-time.Minute)
		require.NoError(t, f.store.SaveSignupRequest(ctx, stored))

		_, err = f.svc.PromoteSignupRequest(ctx, sr.ID, sr.EmailVerificationCode, "")
		assert.ErrorIs(t, err, ErrSignupExpired)
	})

	t.Run("country gate on registration", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.CreateCountry(ctx, &core.Country{
			Code: "XX", Name: "Nowhere", AllowIPRegistration: false,
		}))
		p := params()
		p.CountryCode = "XX"
		_, err := f.svc.StartSignup(ctx, p)
		assert.ErrorIs(t, err, ErrCountryRegistration)
	})
}
