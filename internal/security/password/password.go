// Package password defines the pluggable credential hasher and ships the
// argon2id default. The engine never depends on the primitive directly.
package password

// Hasher is the credential-hashing collaborator.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}
