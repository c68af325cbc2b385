package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/security/password"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

func newFixture(t *testing.T) (*memory.Store, Service) {
	t.Helper()
	st := memory.New()
	hasher := password.Argon2id{Params: password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}}
	return st, NewService(Deps{Store: st, Hasher: hasher})
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("hashes the password", func(t *testing.T) {
		_, svc := newFixture(t)
		u, err := svc.CreateUser(ctx, NewUserParams{
			Username: "ada", Email: "ada@example.com", Password: "plain",
			CountryCode: "AR",
		})
		require.NoError(t, err)
		assert.NotEqual(t, "plain", u.PasswordHash)
		assert.NotEmpty(t, u.PasswordHash)
	})

	t.Run("self creator rejected", func(t *testing.T) {
		_, svc := newFixture(t)
		self := "u-self"
		_, err := svc.CreateUser(ctx, NewUserParams{
			ID: self, Username: "ada", Email: "ada@example.com", Password: "plain",
			CountryCode: "AR", CreatorID: &self,
		})
		assert.ErrorIs(t, err, ErrSelfCreator)
	})

	t.Run("unknown creator rejected", func(t *testing.T) {
		_, svc := newFixture(t)
		ghost := "ghost"
		_, err := svc.CreateUser(ctx, NewUserParams{
			Username: "ada", Email: "ada@example.com", Password: "plain",
			CountryCode: "AR", CreatorID: &ghost,
		})
		assert.ErrorIs(t, err, ErrCreatorNotFound)
	})

	t.Run("creator back-reference kept", func(t *testing.T) {
		_, svc := newFixture(t)
		creator, err := svc.CreateUser(ctx, NewUserParams{
			Username: "root", Email: "root@example.com", Password: "plain", CountryCode: "AR",
		})
		require.NoError(t, err)
		u, err := svc.CreateUser(ctx, NewUserParams{
			Username: "ada", Email: "ada@example.com", Password: "plain",
			CountryCode: "AR", CreatorID: &creator.ID,
		})
		require.NoError(t, err)
		require.NotNil(t, u.CreatorID)
		assert.Equal(t, creator.ID, *u.CreatorID)
	})
}

func TestUpdateProfileHistory(t *testing.T) {
	ctx := context.Background()
	st, svc := newFixture(t)

	u, err := svc.CreateUser(ctx, NewUserParams{
		Username: "ada", Email: "ada@example.com", Password: "plain",
		CountryCode: "AR", FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, u.ID, "Augusta", "King", nil)
	require.NoError(t, err)
	_, err = svc.UpdateProfile(ctx, u.ID, "Ada", "Lovelace", nil)
	require.NoError(t, err)

	got, err := st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	// Each update appended the values it replaced.
	require.Len(t, got.ProfileUpdateHistory, 2)
	assert.Equal(t, "Ada", got.ProfileUpdateHistory[0].FirstName)
	assert.Equal(t, "Augusta", got.ProfileUpdateHistory[1].FirstName)
}

func TestContactStaging(t *testing.T) {
	ctx := context.Background()
	st, svc := newFixture(t)

	u, err := svc.CreateUser(ctx, NewUserParams{
		Username: "ada", Email: "old@example.com", Password: "plain", CountryCode: "AR",
	})
	require.NoError(t, err)

	t.Run("email staged then applied", func(t *testing.T) {
		require.NoError(t, svc.StagePendingEmail(ctx, u.ID, "new@example.com"))

		staged, err := st.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "old@example.com", staged.Email)
		require.NotNil(t, staged.UnverifiedEmail)

		applied, err := svc.ApplyVerifiedContact(ctx, u.ID, core.ReasonEmail)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", applied.Email)
		assert.Nil(t, applied.UnverifiedEmail)
	})

	t.Run("phone staged then applied", func(t *testing.T) {
		require.NoError(t, svc.StagePendingPhone(ctx, u.ID, "UY", 598, "99123456"))

		applied, err := svc.ApplyVerifiedContact(ctx, u.ID, core.ReasonPhoneNumber)
		require.NoError(t, err)
		assert.Equal(t, "99123456", applied.PhoneNumber)
		assert.Equal(t, 598, applied.CountryPhoneCode)
		assert.Equal(t, "UY", applied.CountryCode)
		assert.Nil(t, applied.UnverifiedPhoneNumber)
	})

	t.Run("nothing staged to apply", func(t *testing.T) {
		_, err := svc.ApplyVerifiedContact(ctx, u.ID, core.ReasonEmail)
		assert.ErrorIs(t, err, ErrNothingToApply)
	})
}

func TestRoleAssignment(t *testing.T) {
	ctx := context.Background()
	st, svc := newFixture(t)

	u, err := svc.CreateUser(ctx, NewUserParams{
		Username: "ada", Email: "ada@example.com", Password: "plain", CountryCode: "AR",
	})
	require.NoError(t, err)
	require.NoError(t, st.CreateRole(ctx, &core.Role{Meta: core.Meta{ID: "admin"}}))

	require.NoError(t, svc.AssignRole(ctx, u.ID, "admin"))
	roles, err := svc.Roles(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	require.NoError(t, svc.RevokeRole(ctx, u.ID, "admin"))
	roles, err = svc.Roles(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}
