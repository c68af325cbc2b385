package validation

import "regexp"

// Scope name rules:
// - Lowercase only.
// - Start and end with [a-z0-9].
// - Middle chars may include [a-z0-9:_.-].
// - Length 1..64.
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName reports whether name matches the allowed pattern.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// ScopeAllowed applies the per-client allow-list against a resource's
// declared scopes. allowed nil grants every declared scope, an empty
// (non-nil) list grants none, an explicit list grants exactly its members
// that the resource also declares.
func ScopeAllowed(declared, allowed []string, scope string) bool {
	if !contains(declared, scope) {
		return false
	}
	if allowed == nil {
		return true
	}
	return contains(allowed, scope)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
