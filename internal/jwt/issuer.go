// Package jwt signs access tokens with the active EC key. The signing
// algorithm follows the key record (ES256 for P-256); key storage and
// rotation are collaborator concerns.
package jwt

import (
	"context"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Issuer signs access tokens bound to an issuer URL and a default TTL.
type Issuer struct {
	Iss       string
	Keys      KeyProvider
	AccessTTL time.Duration
}

func NewIssuer(iss string, keys KeyProvider, accessTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &Issuer{Iss: iss, Keys: keys, AccessTTL: accessTTL}
}

// IssueAccess signs an access token for sub scoped to aud, with extra flat
// claims merged in. Returns the compact JWT and its expiry.
func (i *Issuer) IssueAccess(ctx context.Context, sub string, aud []string, extra map[string]any) (string, time.Time, error) {
	record, err := i.Keys.ActiveKey(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	priv, err := ParsePrivateKey(record)
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)
	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"aud": aud,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, claims)
	tk.Header["kid"] = record.ID
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
