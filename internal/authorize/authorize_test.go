package authorize

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

type fixture struct {
	store *memory.Store
	cache cache.Cache
	svc   Service
	user  *core.User
	login *core.Login
}

func newFixture(t *testing.T, showConsent bool, allowedScopes []string) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	c := cache.NewMemory(time.Minute)

	u := &core.User{Meta: core.Meta{ID: "u1"}, Username: "ada", Email: "ada@example.com", CountryCode: "AR"}
	require.NoError(t, st.CreateUser(ctx, u))

	l := &core.Login{Meta: core.Meta{ID: "l1"}, IPAddress: "10.0.0.1", Successful: true, UserID: u.ID}
	require.NoError(t, st.CreateLogin(ctx, l))

	client := &core.ApiClient{Meta: core.Meta{ID: "c1"}, DisplayName: "app", IsActive: true, ShowConsent: showConsent}
	require.NoError(t, st.CreateApiClient(ctx, client))

	res := &core.ApiResource{Meta: core.Meta{ID: "r1"}, DisplayName: "api", IsActive: true, Scopes: []string{"read", "write", "admin"}}
	require.NoError(t, st.CreateApiResource(ctx, res))

	require.NoError(t, st.SetApiClientResource(ctx, &core.ApiClientResource{
		ApiClientID: "c1", ApiResourceID: "r1", AllowedScopes: allowedScopes,
	}))

	svc := NewService(Deps{Store: st, Cache: c})
	return &fixture{store: st, cache: c, svc: svc, user: u, login: l}
}

func (f *fixture) params(scopes []string) CreateParams {
	return CreateParams{
		LoginID:     f.login.ID,
		UserID:      f.user.ID,
		ApiClientID: "c1",
		Scopes:      scopes,
		ResourceIDs: []string{"r1"},
		Challenge:   "challenge",
		Method:      core.VerifierPlain,
	}
}

func TestCreateAuthorizeRequestScopes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		allowed []string
		scopes  []string
		wantErr error
	}{
		{"nil allow-list grants every declared scope", nil, []string{"read", "admin"}, nil},
		{"empty allow-list grants nothing", []string{}, []string{"read"}, ErrInvalidScope},
		{"explicit allow-list grants exactly those", []string{"read"}, []string{"read"}, nil},
		{"scope outside explicit allow-list", []string{"read"}, []string{"write"}, ErrInvalidScope},
		{"undeclared scope never allowed", nil, []string{"delete"}, ErrInvalidScope},
		{"malformed scope name", nil, []string{"re ad"}, ErrInvalidScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false, tt.allowed)
			_, err := f.svc.CreateAuthorizeRequest(ctx, f.params(tt.scopes))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateAuthorizeRequestGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("inactive client rejected", func(t *testing.T) {
		f := newFixture(t, false, nil)
		inactive := &core.ApiClient{Meta: core.Meta{ID: "c2"}, DisplayName: "off", IsActive: false}
		require.NoError(t, f.store.CreateApiClient(ctx, inactive))
		p := f.params([]string{"read"})
		p.ApiClientID = "c2"
		_, err := f.svc.CreateAuthorizeRequest(ctx, p)
		assert.ErrorIs(t, err, ErrClientInactive)
	})

	t.Run("ended login rejected", func(t *testing.T) {
		f := newFixture(t, false, nil)
		l, err := f.store.GetLogin(ctx, f.login.ID)
		require.NoError(t, err)
		now := time.Now().UTC()
		l.EndedAt = &now
		require.NoError(t, f.store.SaveLogin(ctx, l))
		_, err = f.svc.CreateAuthorizeRequest(ctx, f.params([]string{"read"}))
		assert.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("login owned by someone else rejected", func(t *testing.T) {
		f := newFixture(t, false, nil)
		p := f.params([]string{"read"})
		p.UserID = "someone-else"
		_, err := f.svc.CreateAuthorizeRequest(ctx, p)
		assert.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("resource without grant row rejected", func(t *testing.T) {
		f := newFixture(t, false, nil)
		other := &core.ApiResource{Meta: core.Meta{ID: "r2"}, DisplayName: "other", IsActive: true, Scopes: []string{"read"}}
		require.NoError(t, f.store.CreateApiResource(ctx, other))
		p := f.params([]string{"read"})
		p.ResourceIDs = []string{"r2"}
		_, err := f.svc.CreateAuthorizeRequest(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidScope)
	})
}

func TestConsentFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("consent recorded when the client shows it", func(t *testing.T) {
		f := newFixture(t, true, nil)
		r, err := f.svc.CreateAuthorizeRequest(ctx, f.params([]string{"read"}))
		require.NoError(t, err)

		// Completion before consent is refused.
		_, err = f.svc.CompleteAndIssueCode(ctx, r.ID)
		assert.ErrorIs(t, err, ErrConsentRequired)

		r2, err := f.svc.RecordConsent(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, r2.ConsentedAt)

		_, err = f.svc.CompleteAndIssueCode(ctx, r.ID)
		assert.NoError(t, err)
	})

	t.Run("consent refused when the client skips it", func(t *testing.T) {
		f := newFixture(t, false, nil)
		r, err := f.svc.CreateAuthorizeRequest(ctx, f.params([]string{"read"}))
		require.NoError(t, err)
		_, err = f.svc.RecordConsent(ctx, r.ID)
		assert.ErrorIs(t, err, ErrConsentNotRequired)
	})
}

func TestCompleteAndConsume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, nil)

	r, err := f.svc.CreateAuthorizeRequest(ctx, f.params([]string{"read"}))
	require.NoError(t, err)

	code, err := f.svc.CompleteAndIssueCode(ctx, r.ID)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	// Completion is terminal.
	_, err = f.svc.CompleteAndIssueCode(ctx, r.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	got, err := f.svc.ConsumeCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	// One shot: the second consumption fails.
	_, err = f.svc.ConsumeCode(ctx, code)
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestRequestExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, nil)

	r, err := f.svc.CreateAuthorizeRequest(ctx, f.params([]string{"read"}))
	require.NoError(t, err)

	// Age the request past the TTL.
	stored, err := f.store.GetAuthorizeRequest(ctx, r.ID)
	require.NoError(t, err)
	stored.CreatedAt = time.Now().UTC().Add(-11 * time.Minute)
	require.NoError(t, f.store.SaveAuthorizeRequest(ctx, stored))

	_, err = f.svc.CompleteAndIssueCode(ctx, r.ID)
	assert.ErrorIs(t, err, ErrRequestExpired)
}

func TestVerifyPKCE(t *testing.T) {
	verifier := "correct-horse-battery-staple"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	t.Run("plain match", func(t *testing.T) {
		assert.NoError(t, VerifyPKCE(core.VerifierPlain, verifier, verifier))
	})
	t.Run("plain mismatch", func(t *testing.T) {
		assert.ErrorIs(t, VerifyPKCE(core.VerifierPlain, verifier, "wrong"), ErrPkceMismatch)
	})
	t.Run("s256 match", func(t *testing.T) {
		assert.NoError(t, VerifyPKCE(core.VerifierS256, challenge, verifier))
	})
	t.Run("s256 wrong verifier", func(t *testing.T) {
		assert.ErrorIs(t, VerifyPKCE(core.VerifierS256, challenge, "wrong"), ErrPkceMismatch)
	})
	t.Run("no cross-method fallback", func(t *testing.T) {
		// A plain challenge presented under S256 must not pass by equality.
		assert.ErrorIs(t, VerifyPKCE(core.VerifierS256, verifier, verifier), ErrPkceMismatch)
	})
}
