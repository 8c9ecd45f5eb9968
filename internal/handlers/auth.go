package handlers

import (
	"net/http"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

type otpRequest struct {
	Identifier string `json:"identifier"`
	OTP        string `json:"otp"`
}

// SendOTP handles POST /auth/otp/send
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid request body")
		return
	}
	if err := h.deps.Auth.SendOTP(r.Context(), req.Identifier); err != nil {
		h.fail(w, r, err, "failed to send OTP")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// VerifyOTP handles POST /auth/otp/verify and starts a session
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "invalid request body")
		return
	}
	s, err := h.deps.Auth.VerifyOTP(r.Context(), req.Identifier, req.OTP)
	if err != nil {
		h.fail(w, r, err, "failed to verify OTP")
		return
	}

	s = h.deps.Sessions.Create(s)
	if err := h.deps.Sessions.WriteCookie(w, s); err != nil {
		h.deps.Sessions.Delete(s.ID)
		h.fail(w, r, err, "failed to start session")
		return
	}
	h.logger.Info("admin signed in", zap.Int64("user_id", s.UserID))
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"user": s})
}

// Logout handles POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if s, ok := domain.SessionFrom(r.Context()); ok {
		h.deps.Sessions.Delete(s.ID)
	}
	h.deps.Sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s, _ := domain.SessionFrom(r.Context())
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"user": s})
}

// CSRFToken handles GET /auth/csrf. The token goes into the X-CSRF-Token
// header of form and multipart submissions.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, r, http.StatusOK, map[string]string{"token": csrf.Token(r)})
}
