package jwt

import (
	"context"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

func TestGenerateAndParseECKey(t *testing.T) {
	k, err := GenerateECKey()
	require.NoError(t, err)
	assert.Equal(t, core.JwkEC, k.Type)
	assert.Equal(t, "P-256", k.Curve)
	assert.True(t, k.IsActive)

	priv, err := ParsePrivateKey(k)
	require.NoError(t, err)
	assert.NotNil(t, priv.PublicKey.X)
}

func TestParsePrivateKeyRejectsUnsupported(t *testing.T) {
	t.Run("rsa not provisioned", func(t *testing.T) {
		_, err := ParsePrivateKey(&core.AppJsonWebKey{Type: core.JwkRSA})
		assert.Error(t, err)
	})
	t.Run("oct symmetric signing refused", func(t *testing.T) {
		_, err := ParsePrivateKey(&core.AppJsonWebKey{Type: core.JwkOct})
		assert.Error(t, err)
	})
}

func TestIssueAccess(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	k, err := GenerateECKey()
	require.NoError(t, err)
	require.NoError(t, st.CreateJsonWebKey(ctx, k))

	issuer := NewIssuer("https://id.example.com", StoreKeyProvider{Store: st}, 15*time.Minute)
	signed, exp, err := issuer.IssueAccess(ctx, "u1", []string{"r1"}, map[string]any{"client_id": "c1"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	priv, err := ParsePrivateKey(k)
	require.NoError(t, err)

	parsed, err := jwtv5.Parse(signed, func(tk *jwtv5.Token) (any, error) {
		assert.Equal(t, k.ID, tk.Header["kid"])
		return &priv.PublicKey, nil
	}, jwtv5.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(jwtv5.MapClaims)
	assert.Equal(t, "https://id.example.com", claims["iss"])
	assert.Equal(t, "u1", claims["sub"])
	assert.Equal(t, "c1", claims["client_id"])
}

func TestIssueAccessWithoutActiveKey(t *testing.T) {
	issuer := NewIssuer("https://id.example.com", StoreKeyProvider{Store: memory.New()}, 0)
	_, _, err := issuer.IssueAccess(context.Background(), "u1", nil, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
