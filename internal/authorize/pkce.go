package authorize

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	tokens "github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/store/core"
)

var ErrPkceMismatch = errors.New("pkce verification failed")

// VerifyPKCE recomputes the challenge from the presented verifier under the
// method the request was created with. The switch is exhaustive and there is
// no fallback between methods.
func VerifyPKCE(method core.VerifierMethod, challenge, verifier string) error {
	switch method {
	case core.VerifierPlain:
		if !tokens.ConstantTimeEquals(verifier, challenge) {
			return ErrPkceMismatch
		}
		return nil
	case core.VerifierS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		if !tokens.ConstantTimeEquals(computed, challenge) {
			return ErrPkceMismatch
		}
		return nil
	default:
		return ErrPkceMismatch
	}
}
