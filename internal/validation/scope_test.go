package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidScopeName(t *testing.T) {
	valid := []string{"read", "users.read", "offline_access", "api:write", "a"}
	for _, s := range valid {
		assert.True(t, ValidScopeName(s), "expected %q valid", s)
	}
	invalid := []string{"", "re ad", "read\n", "café", "a b c"}
	for _, s := range invalid {
		assert.False(t, ValidScopeName(s), "expected %q invalid", s)
	}
}

func TestScopeAllowed(t *testing.T) {
	declared := []string{"read", "write", "admin"}

	t.Run("nil allow-list means every declared scope", func(t *testing.T) {
		assert.True(t, ScopeAllowed(declared, nil, "read"))
		assert.True(t, ScopeAllowed(declared, nil, "admin"))
	})

	t.Run("empty allow-list means none", func(t *testing.T) {
		assert.False(t, ScopeAllowed(declared, []string{}, "read"))
	})

	t.Run("explicit allow-list means exactly those", func(t *testing.T) {
		allowed := []string{"read"}
		assert.True(t, ScopeAllowed(declared, allowed, "read"))
		assert.False(t, ScopeAllowed(declared, allowed, "write"))
	})

	t.Run("undeclared scope is never allowed", func(t *testing.T) {
		assert.False(t, ScopeAllowed(declared, nil, "delete"))
		assert.False(t, ScopeAllowed(declared, []string{"delete"}, "delete"))
	})
}
