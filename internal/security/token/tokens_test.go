package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOpaque(t *testing.T) {
	a, err := GenerateOpaque(32)
	require.NoError(t, err)
	b, err := GenerateOpaque(32)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}

func TestSHA256Base64URL(t *testing.T) {
	h := SHA256Base64URL("input")
	assert.Equal(t, h, SHA256Base64URL("input"))
	assert.NotEqual(t, h, SHA256Base64URL("other"))
	assert.NotEqual(t, "input", h)
}

func TestConstantTimeEquals(t *testing.T) {
	assert.True(t, ConstantTimeEquals("abc", "abc"))
	assert.False(t, ConstantTimeEquals("abc", "abd"))
	assert.False(t, ConstantTimeEquals("abc", "abcd"))
	assert.True(t, ConstantTimeEquals("", ""))
}

func TestGenerateDigits(t *testing.T) {
	code, err := GenerateDigits(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.GreaterOrEqual(t, r, '0')
		assert.LessOrEqual(t, r, '9')
	}
}
