// Package tokens generates and digests the opaque credentials handed to
// clients: authorization codes, access tokens and refresh tokens.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// GenerateOpaque returns nBytes of randomness as unpadded base64url.
// Entropy is a caller decision; 32 bytes is the usual floor.
func GenerateOpaque(nBytes int) (string, error) {
	if nBytes <= 0 {
		return "", fmt.Errorf("tokens: invalid length %d", nBytes)
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL digests s for at-rest storage; only the digest of a refresh
// token or code ever reaches the store.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two short secrets without leaking a prefix length.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateDigits returns an n-digit decimal code for email/SMS verification.
func GenerateDigits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("tokens: invalid length %d", n)
	}
	out := make([]byte, n)
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		out[i] = '0' + buf[i]%10
	}
	return string(out), nil
}
