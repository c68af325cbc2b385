package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/janus/internal/store/core"
)

// accountHandler covers profile and contact maintenance plus the one-time
// code confirmation loop, and the upstream refresh of linked external logins.
type accountHandler struct {
	deps Deps
}

func (h *accountHandler) Register(r chi.Router) {
	r.Put("/v1/users/{userId}/profile", h.updateProfile)
	r.Post("/v1/users/{userId}/email", h.stageEmail)
	r.Post("/v1/users/{userId}/phone", h.stagePhone)
	r.Post("/v1/users/{userId}/codes", h.issueCode)
	r.Post("/v1/codes/{codeId}/verify", h.verifyCode)
	r.Post("/v1/external/{externalLoginId}/refresh", h.refreshUpstream)
}

type profileRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Avatar    *string `json:"avatar,omitempty"`
}

func (h *accountHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	u, err := h.deps.Identity.UpdateProfile(r.Context(), chi.URLParam(r, "userId"),
		req.FirstName, req.LastName, req.Avatar)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    u.ID,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
	})
}

type stageEmailRequest struct {
	Email string `json:"email"`
}

func (h *accountHandler) stageEmail(w http.ResponseWriter, r *http.Request) {
	var req stageEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if err := h.deps.Identity.StagePendingEmail(r.Context(), chi.URLParam(r, "userId"), req.Email); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type stagePhoneRequest struct {
	CountryCode      string `json:"country_code"`
	CountryPhoneCode int    `json:"country_phone_code"`
	PhoneNumber      string `json:"phone_number"`
}

func (h *accountHandler) stagePhone(w http.ResponseWriter, r *http.Request) {
	var req stagePhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	err := h.deps.Identity.StagePendingPhone(r.Context(), chi.URLParam(r, "userId"),
		req.CountryCode, req.CountryPhoneCode, req.PhoneNumber)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type issueCodeRequest struct {
	Reason string `json:"reason"`
}

func (h *accountHandler) issueCode(w http.ResponseWriter, r *http.Request) {
	var req issueCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	otc, err := h.deps.Policy.IssueOneTimeCode(r.Context(), chi.URLParam(r, "userId"),
		core.OneTimeCodeReason(req.Reason), clientIP(r), r.UserAgent())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code_id": otc.ID})
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

// verifyCode consumes the one-time code and, for contact change reasons,
// promotes the staged values in one round trip.
func (h *accountHandler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	codeID := chi.URLParam(r, "codeId")
	if err := h.deps.Policy.VerifyOneTimeCode(r.Context(), codeID, req.Code); err != nil {
		respondErr(w, r, err)
		return
	}

	otc, err := h.deps.Store.GetOneTimeCode(r.Context(), codeID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	switch otc.Reason {
	case core.ReasonEmail, core.ReasonPhoneNumber:
		if _, err := h.deps.Identity.ApplyVerifiedContact(r.Context(), otc.UserID, otc.Reason); err != nil {
			respondErr(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *accountHandler) refreshUpstream(w http.ResponseWriter, r *http.Request) {
	e, err := h.deps.External.RefreshUpstream(r.Context(), chi.URLParam(r, "externalLoginId"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"external_login_id": e.ID,
		"updated_at":        e.UpdatedAt,
	})
}
