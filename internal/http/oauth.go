package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/janus/internal/authorize"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/token"
)

// oauthHandler covers the authorization and token endpoints.
type oauthHandler struct {
	deps Deps
}

func (h *oauthHandler) Register(r chi.Router) {
	r.Post("/v1/oauth/authorize", h.createAuthorize)
	r.Post("/v1/oauth/authorize/{requestId}/consent", h.consent)
	r.Post("/v1/oauth/authorize/{requestId}/complete", h.complete)
	r.Post("/v1/oauth/token", h.token)
	r.Post("/v1/oauth/revoke", h.revoke)
}

type authorizeRequestBody struct {
	LoginID       string   `json:"login_id"`
	UserID        string   `json:"user_id"`
	ClientID      string   `json:"client_id"`
	RequestType   int      `json:"request_type"`
	Scopes        []string `json:"scopes"`
	ResourceIDs   []string `json:"resource_ids"`
	CodeChallenge string   `json:"code_challenge"`
	Method        string   `json:"code_challenge_method"`
	State         *string  `json:"state,omitempty"`
	Nonce         *string  `json:"nonce,omitempty"`
}

func (h *oauthHandler) createAuthorize(w http.ResponseWriter, r *http.Request) {
	var body authorizeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	var method core.VerifierMethod
	switch body.Method {
	case "S256":
		method = core.VerifierS256
	case "", "plain":
		method = core.VerifierPlain
	default:
		writeErr(w, http.StatusBadRequest, "invalid_request", "unsupported code_challenge_method")
		return
	}
	req, err := h.deps.Authorize.CreateAuthorizeRequest(r.Context(), authorize.CreateParams{
		LoginID:     body.LoginID,
		UserID:      body.UserID,
		ApiClientID: body.ClientID,
		RequestType: core.RequestType(body.RequestType),
		Scopes:      body.Scopes,
		ResourceIDs: body.ResourceIDs,
		Challenge:   body.CodeChallenge,
		Method:      method,
		State:       body.State,
		Nonce:       body.Nonce,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"request_id":       req.ID,
		"consent_required": req.ConsentedAt == nil,
	})
}

func (h *oauthHandler) consent(w http.ResponseWriter, r *http.Request) {
	req, err := h.deps.Authorize.RecordConsent(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id":   req.ID,
		"consented_at": req.ConsentedAt,
	})
}

func (h *oauthHandler) complete(w http.ResponseWriter, r *http.Request) {
	code, err := h.deps.Authorize.CompleteAndIssueCode(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

// token implements the grant dispatch of the token endpoint. Input is form
// encoded like the RFC says.
func (h *oauthHandler) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed form")
		return
	}

	var (
		pair *token.Pair
		err  error
	)
	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		pair, err = h.deps.Tokens.ExchangeCode(r.Context(),
			r.PostFormValue("code"),
			r.PostFormValue("code_verifier"),
			r.PostFormValue("client_id"),
			clientIP(r))
	case "refresh_token":
		pair, err = h.deps.Tokens.RefreshTokens(r.Context(),
			r.PostFormValue("refresh_token"),
			clientIP(r))
	default:
		writeErr(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant_type")
		return
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(time.Until(pair.ExpiresAt).Seconds()),
	})
}

type revokeRequest struct {
	TokenRequestID string `json:"token_request_id"`
}

func (h *oauthHandler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if err := h.deps.Tokens.RevokeChain(r.Context(), req.TokenRequestID); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
