package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/janus/internal/policy"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// authHandler covers first-party session endpoints: login, TOTP step-up,
// logout, and signup.
type authHandler struct {
	deps Deps
}

func (h *authHandler) Register(r chi.Router) {
	r.Post("/v1/auth/login", h.login)
	r.Post("/v1/auth/totp", h.totp)
	r.Post("/v1/auth/logout", h.logout)
	r.Post("/v1/auth/signup", h.signup)
	r.Post("/v1/auth/signup/{signupId}/promote", h.promote)
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	l, err := h.deps.Policy.Authenticate(r.Context(), req.Identifier, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"login_id": l.ID,
		"user_id":  l.UserID,
	})
}

type totpRequest struct {
	LoginID string `json:"login_id"`
	Code    string `json:"code"`
}

func (h *authHandler) totp(w http.ResponseWriter, r *http.Request) {
	var req totpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if err := h.deps.Policy.VerifyTotp(r.Context(), req.LoginID, req.Code); err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type logoutRequest struct {
	LoginID string `json:"login_id"`
}

func (h *authHandler) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if err := h.deps.Sessions.EndLogin(r.Context(), req.LoginID, core.EndCauseLogout, clientIP(r)); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signupRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	PhoneNumber      string `json:"phone_number,omitempty"`
	CountryCode      string `json:"country_code"`
	CountryPhoneCode int    `json:"country_phone_code,omitempty"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	WithSMS          bool   `json:"with_sms,omitempty"`
}

func (h *authHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	sr, err := h.deps.Policy.StartSignup(r.Context(), signupParamsFrom(req, r))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"signup_id":  sr.ID,
		"expires_at": sr.ExpiresAt,
	})
}

func signupParamsFrom(req signupRequest, r *http.Request) policy.SignupParams {
	return policy.SignupParams{
		Username:         req.Username,
		Email:            req.Email,
		Password:         req.Password,
		PhoneNumber:      req.PhoneNumber,
		CountryCode:      req.CountryCode,
		CountryPhoneCode: req.CountryPhoneCode,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		IP:               clientIP(r),
		UserAgent:        r.UserAgent(),
		WithSMS:          req.WithSMS,
	}
}

type promoteRequest struct {
	EmailCode string `json:"email_code"`
	SmsCode   string `json:"sms_code,omitempty"`
}

func (h *authHandler) promote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	u, err := h.deps.Policy.PromoteSignupRequest(r.Context(), chi.URLParam(r, "signupId"), req.EmailCode, req.SmsCode)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id":  u.ID,
		"username": u.Username,
	})
}
