package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/store/core"
)

func newUser(id, username, email string) *core.User {
	return &core.User{
		Meta: core.Meta{ID: id}, Username: username, Email: email, CountryCode: "AR",
	}
}

func TestCreateUserUniqueness(t *testing.T) {
	ctx := context.Background()
	st := New()

	require.NoError(t, st.CreateUser(ctx, newUser("u1", "ada", "ada@example.com")))

	t.Run("duplicate username is case-insensitive", func(t *testing.T) {
		err := st.CreateUser(ctx, newUser("u2", "ADA", "other@example.com"))
		assert.ErrorIs(t, err, core.ErrConflict)
	})

	t.Run("duplicate email is case-insensitive", func(t *testing.T) {
		err := st.CreateUser(ctx, newUser("u3", "grace", "ADA@example.com"))
		assert.ErrorIs(t, err, core.ErrConflict)
	})

	t.Run("absent phones do not collide", func(t *testing.T) {
		require.NoError(t, st.CreateUser(ctx, newUser("u6", "lise", "lise@example.com")))
		require.NoError(t, st.CreateUser(ctx, newUser("u7", "emmy", "emmy@example.com")))
	})

	t.Run("duplicate phone", func(t *testing.T) {
		a := newUser("u4", "alan", "alan@example.com")
		a.CountryPhoneCode = 54
		a.PhoneNumber = "1155551234"
		require.NoError(t, st.CreateUser(ctx, a))

		b := newUser("u5", "kurt", "kurt@example.com")
		b.CountryPhoneCode = 54
		b.PhoneNumber = "1155551234"
		assert.ErrorIs(t, st.CreateUser(ctx, b), core.ErrConflict)
	})
}

func TestConditionalSave(t *testing.T) {
	ctx := context.Background()
	st := New()
	require.NoError(t, st.CreateUser(ctx, newUser("u1", "ada", "ada@example.com")))

	// Two readers take the same snapshot.
	a, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	b, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.Version)

	a.FirstName = "Ada"
	require.NoError(t, st.SaveUser(ctx, a))
	assert.Equal(t, uint64(2), a.Version)

	// The stale snapshot loses.
	b.FirstName = "Augusta"
	assert.ErrorIs(t, st.SaveUser(ctx, b), core.ErrVersionConflict)

	// Re-read and retry wins.
	b, err = st.GetUser(ctx, "u1")
	require.NoError(t, err)
	b.FirstName = "Augusta"
	require.NoError(t, st.SaveUser(ctx, b))

	got, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Augusta", got.FirstName)
	assert.Equal(t, uint64(3), got.Version)
}

func TestReadsAreDetached(t *testing.T) {
	ctx := context.Background()
	st := New()
	require.NoError(t, st.CreateUser(ctx, newUser("u1", "ada", "ada@example.com")))

	a, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	a.Username = "mutated"

	b, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada", b.Username)
}

func TestTokenRequestLookups(t *testing.T) {
	ctx := context.Background()
	st := New()

	a := &core.ApiClientTokenRequest{
		Meta: core.Meta{ID: "t1"}, RefreshTokenHash: "hash-1",
		ApiClientID: "c1", AuthorizeRequestID: "ar1",
	}
	require.NoError(t, st.CreateTokenRequest(ctx, a))

	byHash, err := st.FindTokenRequestByRefreshHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", byHash.ID)

	byAR, err := st.FindTokenRequestByAuthorizeRequest(ctx, "ar1")
	require.NoError(t, err)
	assert.Equal(t, "t1", byAR.ID)

	_, err = st.FindTokenRequestByRefreshHash(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Chain predecessor lookup follows RefreshedBy backwards.
	next := "t2"
	a.RefreshedBy = &next
	a.IsRefreshTokenUsed = true
	require.NoError(t, st.SaveTokenRequest(ctx, a))
	b := &core.ApiClientTokenRequest{
		Meta: core.Meta{ID: "t2"}, RefreshTokenHash: "hash-2",
		ApiClientID: "c1", AuthorizeRequestID: "ar1",
	}
	require.NoError(t, st.CreateTokenRequest(ctx, b))

	prev, err := st.FindTokenRequestRefreshing(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "t1", prev.ID)
}

func TestAllowedScopesShapeSurvivesStorage(t *testing.T) {
	ctx := context.Background()
	st := New()

	// nil means every declared scope, empty means none. The store must hand
	// back exactly the shape it was given.
	require.NoError(t, st.SetApiClientResource(ctx, &core.ApiClientResource{
		ApiClientID: "c1", ApiResourceID: "r1", AllowedScopes: nil,
	}))
	require.NoError(t, st.SetApiClientResource(ctx, &core.ApiClientResource{
		ApiClientID: "c1", ApiResourceID: "r2", AllowedScopes: []string{},
	}))

	open, err := st.GetApiClientResource(ctx, "c1", "r1")
	require.NoError(t, err)
	assert.Nil(t, open.AllowedScopes)

	closed, err := st.GetApiClientResource(ctx, "c1", "r2")
	require.NoError(t, err)
	require.NotNil(t, closed.AllowedScopes)
	assert.Empty(t, closed.AllowedScopes)
}

func TestUserRoles(t *testing.T) {
	ctx := context.Background()
	st := New()
	require.NoError(t, st.CreateUser(ctx, newUser("u1", "ada", "ada@example.com")))
	require.NoError(t, st.CreateRole(ctx, &core.Role{Meta: core.Meta{ID: "admin"}}))

	require.NoError(t, st.AddUserRole(ctx, &core.UserRole{RoleID: "admin", UserID: "u1"}))
	roles, err := st.ListUserRoles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "admin", roles[0].RoleID)

	require.NoError(t, st.RemoveUserRole(ctx, &core.UserRole{RoleID: "admin", UserID: "u1"}))
	roles, err = st.ListUserRoles(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, roles)
}
