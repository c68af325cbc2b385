package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/janus/internal/authorize"
	"github.com/dropDatabas3/janus/internal/external"
	"github.com/dropDatabas3/janus/internal/identity"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/policy"
	"github.com/dropDatabas3/janus/internal/session"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/token"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": desc,
	})
}

// mapping of a sentinel error onto an OAuth-style response.
type errMapping struct {
	status int
	code   string
}

var errTable = []struct {
	err error
	m   errMapping
}{
	{core.ErrNotFound, errMapping{http.StatusNotFound, "not_found"}},
	{core.ErrConflict, errMapping{http.StatusConflict, "conflict"}},
	{core.ErrConcurrentModification, errMapping{http.StatusConflict, "concurrent_modification"}},

	{session.ErrSessionExpired, errMapping{http.StatusUnauthorized, "session_expired"}},
	{session.ErrAlreadyEnded, errMapping{http.StatusConflict, "session_ended"}},

	{authorize.ErrInvalidScope, errMapping{http.StatusBadRequest, "invalid_scope"}},
	{authorize.ErrClientInactive, errMapping{http.StatusBadRequest, "unauthorized_client"}},
	{authorize.ErrSessionInvalid, errMapping{http.StatusUnauthorized, "invalid_request"}},
	{authorize.ErrConsentNotRequired, errMapping{http.StatusBadRequest, "invalid_request"}},
	{authorize.ErrConsentRequired, errMapping{http.StatusBadRequest, "consent_required"}},
	{authorize.ErrAlreadyCompleted, errMapping{http.StatusConflict, "invalid_request"}},
	{authorize.ErrRequestExpired, errMapping{http.StatusBadRequest, "invalid_request"}},
	{authorize.ErrCodeInvalid, errMapping{http.StatusBadRequest, "invalid_grant"}},
	{authorize.ErrCodeAlreadyExchanged, errMapping{http.StatusBadRequest, "invalid_grant"}},
	{authorize.ErrPkceMismatch, errMapping{http.StatusBadRequest, "invalid_grant"}},

	{token.ErrTokenNotFound, errMapping{http.StatusBadRequest, "invalid_grant"}},
	{token.ErrTokenReused, errMapping{http.StatusBadRequest, "invalid_grant"}},
	{token.ErrTokenRevoked, errMapping{http.StatusBadRequest, "invalid_grant"}},
	{token.ErrNotCompleted, errMapping{http.StatusBadRequest, "invalid_grant"}},

	{policy.ErrInvalidCredentials, errMapping{http.StatusUnauthorized, "invalid_credentials"}},
	{policy.ErrAccountLocked, errMapping{http.StatusForbidden, "account_locked"}},
	{policy.ErrAccountBlocked, errMapping{http.StatusForbidden, "account_blocked"}},
	{policy.ErrTotpNotEnrolled, errMapping{http.StatusBadRequest, "totp_not_enrolled"}},
	{policy.ErrTotpInvalid, errMapping{http.StatusUnauthorized, "totp_invalid"}},
	{policy.ErrTotpReplayed, errMapping{http.StatusUnauthorized, "totp_replayed"}},
	{policy.ErrCodeExpired, errMapping{http.StatusBadRequest, "code_expired"}},
	{policy.ErrCodeAlreadyUsed, errMapping{http.StatusConflict, "code_used"}},
	{policy.ErrCodeMismatch, errMapping{http.StatusBadRequest, "code_mismatch"}},
	{policy.ErrCodeInvalidated, errMapping{http.StatusBadRequest, "code_invalidated"}},
	{policy.ErrSignupExpired, errMapping{http.StatusBadRequest, "signup_expired"}},
	{policy.ErrSignupConsumed, errMapping{http.StatusConflict, "signup_consumed"}},
	{policy.ErrCountryRegistration, errMapping{http.StatusForbidden, "registration_not_allowed"}},

	{identity.ErrSelfCreator, errMapping{http.StatusBadRequest, "invalid_request"}},
	{identity.ErrCreatorNotFound, errMapping{http.StatusBadRequest, "invalid_request"}},
	{identity.ErrNothingToApply, errMapping{http.StatusBadRequest, "invalid_request"}},

	{external.ErrNoRefreshToken, errMapping{http.StatusBadRequest, "invalid_request"}},
	{external.ErrUpstreamDenied, errMapping{http.StatusBadGateway, "upstream_denied"}},
	{external.ErrUpstreamFailure, errMapping{http.StatusBadGateway, "upstream_error"}},
}

// respondErr maps a service error onto the wire. Unknown errors become an
// opaque 500 and get logged with the request logger.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errTable {
		if errors.Is(err, e.err) {
			writeErr(w, e.m.status, e.m.code, e.err.Error())
			return
		}
	}
	logger.From(r.Context()).Error("unhandled error", logger.Err(err))
	writeErr(w, http.StatusInternalServerError, "server_error", "internal error")
}
