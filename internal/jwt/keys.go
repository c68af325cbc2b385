package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/janus/internal/store/core"
)

// KeyProvider hands out the active signing key. The engine never generates or
// rotates keys on its own; rotation infrastructure lives outside this module.
type KeyProvider interface {
	ActiveKey(ctx context.Context) (*core.AppJsonWebKey, error)
}

// StoreKeyProvider reads the active key from the store.
type StoreKeyProvider struct {
	Store core.Store
}

var _ KeyProvider = StoreKeyProvider{}

func (p StoreKeyProvider) ActiveKey(ctx context.Context) (*core.AppJsonWebKey, error) {
	return p.Store.GetActiveJsonWebKey(ctx)
}

// ParsePrivateKey materializes the ECDSA private key from a jwk record.
// The switch over JwkType is exhaustive: RSA records are not provisioned by
// this module and symmetric (oct) signing is deliberately not a supported path.
func ParsePrivateKey(k *core.AppJsonWebKey) (*ecdsa.PrivateKey, error) {
	switch k.Type {
	case core.JwkEC:
	case core.JwkRSA:
		return nil, fmt.Errorf("jwt: RSA keys are not provisioned")
	case core.JwkOct:
		return nil, fmt.Errorf("jwt: symmetric signing is not a supported path")
	default:
		return nil, fmt.Errorf("jwt: unknown key type %d", k.Type)
	}
	curve, err := curveByName(k.Curve)
	if err != nil {
		return nil, err
	}
	x, err := b64Int(k.X)
	if err != nil {
		return nil, fmt.Errorf("jwt: bad X: %w", err)
	}
	y, err := b64Int(k.Y)
	if err != nil {
		return nil, fmt.Errorf("jwt: bad Y: %w", err)
	}
	d, err := b64Int(k.D)
	if err != nil {
		return nil, fmt.Errorf("jwt: bad D: %w", err)
	}
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}, nil
}

// GenerateECKey mints a fresh active P-256 key record, used by the keygen
// command and by tests.
func GenerateECKey() (*core.AppJsonWebKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &core.AppJsonWebKey{
		Meta:     core.Meta{ID: uuid.NewString(), CreatedAt: time.Now().UTC(), Version: 1},
		IsActive: true,
		Type:     core.JwkEC,
		Curve:    "P-256",
		X:        base64.RawURLEncoding.EncodeToString(priv.PublicKey.X.Bytes()),
		Y:        base64.RawURLEncoding.EncodeToString(priv.PublicKey.Y.Bytes()),
		D:        base64.RawURLEncoding.EncodeToString(priv.D.Bytes()),
	}, nil
}

func curveByName(name string) (elliptic.Curve, error) {
	switch name {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	}
	return nil, fmt.Errorf("jwt: unsupported curve %q", name)
}

func b64Int(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
