package totp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRoundTrip(t *testing.T) {
	raw, b32, err := GenerateSecret()
	require.NoError(t, err)
	assert.Len(t, raw, 20)

	decoded, err := DecodeSecret(b32)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)

	// Lowercase and whitespace are tolerated on input.
	decoded, err = DecodeSecret("  " + b32 + " ")
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestVerifyWindow(t *testing.T) {
	raw, _, err := GenerateSecret()
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)

	code := Generate(raw, now)

	ok, counter := Verify(raw, code, now, 1, nil)
	assert.True(t, ok)
	assert.Equal(t, now.Unix()/Period, counter)

	// One step of drift either way is accepted.
	ok, _ = Verify(raw, code, now.Add(Period*time.Second), 1, nil)
	assert.True(t, ok)
	ok, _ = Verify(raw, code, now.Add(-Period*time.Second), 1, nil)
	assert.True(t, ok)

	// Two steps of drift is outside the window.
	ok, _ = Verify(raw, code, now.Add(2*Period*time.Second), 1, nil)
	assert.False(t, ok)
}

func TestVerifyReplayFloor(t *testing.T) {
	raw, _, err := GenerateSecret()
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)

	code := Generate(raw, now)
	ok, counter := Verify(raw, code, now, 1, nil)
	require.True(t, ok)

	// The accepted counter becomes the floor; the same code no longer verifies.
	ok, _ = Verify(raw, code, now, 1, &counter)
	assert.False(t, ok)

	// The next step's code clears the floor.
	next := Generate(raw, now.Add(Period*time.Second))
	ok, nextCounter := Verify(raw, next, now.Add(Period*time.Second), 1, &counter)
	assert.True(t, ok)
	assert.Greater(t, nextCounter, counter)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	raw, _, err := GenerateSecret()
	require.NoError(t, err)
	now := time.Now()

	ok, _ := Verify(raw, "12345", now, 1, nil)
	assert.False(t, ok)
	ok, _ = Verify(raw, "1234567", now, 1, nil)
	assert.False(t, ok)
}

func TestOTPAuthURL(t *testing.T) {
	u := OTPAuthURL("janus", "ada@example.com", "SECRET")
	assert.Contains(t, u, "otpauth://totp/")
	assert.Contains(t, u, "secret=SECRET")
	assert.Contains(t, u, "issuer=janus")
}
