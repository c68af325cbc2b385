package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

type upstreamStub struct {
	mu       sync.Mutex
	valid    map[string]bool
	requests []string
}

func (u *upstreamStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		rt := r.PostFormValue("refresh_token")
		u.mu.Lock()
		u.requests = append(u.requests, rt)
		ok := u.valid[rt]
		u.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-new","refresh_token":"rt-new","id_token":"idt-new"}`))
	}
}

func newFixture(t *testing.T, stub *upstreamStub) (*memory.Store, Service, *core.ExternalLogin) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	u := &core.User{Meta: core.Meta{ID: "u1"}, Username: "ada", Email: "ada@example.com", CountryCode: "AR"}
	require.NoError(t, st.CreateUser(ctx, u))
	l := &core.Login{Meta: core.Meta{ID: "l1"}, IPAddress: "10.0.0.1", Successful: true, UserID: "u1"}
	require.NoError(t, st.CreateLogin(ctx, l))
	require.NoError(t, st.CreateApiClient(ctx, &core.ApiClient{Meta: core.Meta{ID: "c1"}, DisplayName: "app", IsActive: true}))

	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	svc := NewService(Deps{
		Store:    st,
		Upstream: Upstream{TokenURL: srv.URL, ClientID: "janus", ClientSecret: "hush"},
	})

	at, rt := "at-current", "rt-current"
	e, err := svc.LinkExternalLogin(ctx, LinkParams{
		UserID: "u1", LoginID: "l1", ApiClientID: "c1",
		IPAddress: "10.0.0.1", AccessToken: &at, RefreshToken: &rt,
		OpenIDScopes: []string{"openid", "profile"},
	})
	require.NoError(t, err)
	return st, svc, e
}

func TestLinkExternalLogin(t *testing.T) {
	_, _, e := newFixture(t, &upstreamStub{valid: map[string]bool{}})
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, "l1", e.LoginID)
	require.NotNil(t, e.RefreshToken)
	assert.Nil(t, e.PreviousRefreshToken)
}

func TestLinkRequiresLogin(t *testing.T) {
	st := memory.New()
	svc := NewService(Deps{Store: st})
	_, err := svc.LinkExternalLogin(context.Background(), LinkParams{LoginID: "missing"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRefreshUpstreamRotatesWithOverlap(t *testing.T) {
	ctx := context.Background()
	stub := &upstreamStub{valid: map[string]bool{"rt-current": true}}
	st, svc, e := newFixture(t, stub)

	got, err := svc.RefreshUpstream(ctx, e.ID)
	require.NoError(t, err)

	// The old token is kept as the overlap value.
	require.NotNil(t, got.PreviousRefreshToken)
	assert.Equal(t, "rt-current", *got.PreviousRefreshToken)
	assert.Equal(t, "rt-new", *got.RefreshToken)
	assert.Equal(t, "at-new", *got.AccessToken)
	require.NotNil(t, got.UpdatedAt)

	stored, err := st.GetExternalLogin(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, *got.RefreshToken, *stored.RefreshToken)
}

func TestRefreshUpstreamFallsBackToPrevious(t *testing.T) {
	ctx := context.Background()
	// Only the previous token is still honored upstream: the last rotation's
	// response was lost before we stored the new value.
	stub := &upstreamStub{valid: map[string]bool{"rt-previous": true}}
	st, svc, e := newFixture(t, stub)

	stored, err := st.GetExternalLogin(ctx, e.ID)
	require.NoError(t, err)
	prev := "rt-previous"
	stored.PreviousRefreshToken = &prev
	require.NoError(t, st.SaveExternalLogin(ctx, stored))

	got, err := svc.RefreshUpstream(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "rt-new", *got.RefreshToken)

	// Both tokens were tried in order.
	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.requests, 2)
	assert.Equal(t, "rt-current", stub.requests[0])
	assert.Equal(t, "rt-previous", stub.requests[1])
}

func TestRefreshUpstreamDenied(t *testing.T) {
	stub := &upstreamStub{valid: map[string]bool{}}
	_, svc, e := newFixture(t, stub)

	_, err := svc.RefreshUpstream(context.Background(), e.ID)
	assert.ErrorIs(t, err, ErrUpstreamDenied)
}

func TestRefreshUpstreamWithoutToken(t *testing.T) {
	ctx := context.Background()
	stub := &upstreamStub{valid: map[string]bool{}}
	st, svc, e := newFixture(t, stub)

	stored, err := st.GetExternalLogin(ctx, e.ID)
	require.NoError(t, err)
	stored.RefreshToken = nil
	require.NoError(t, st.SaveExternalLogin(ctx, stored))

	_, err = svc.RefreshUpstream(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestRedactForm(t *testing.T) {
	out := redactForm("grant_type=refresh_token&refresh_token=sekrit&client_id=janus&client_secret=hush")
	require.NotNil(t, out)
	assert.NotContains(t, *out, "sekrit")
	assert.NotContains(t, *out, "hush")
	assert.Contains(t, *out, "REDACTED")
	assert.Contains(t, *out, "client_id=janus")
}
