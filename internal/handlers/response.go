package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/middleware"
)

// responder holds the helpers every handler uses
type responder struct {
	logger *zap.Logger
}

// respondJSON sends a JSON response
func (h responder) respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
}

// respondError sends an error response
func (h responder) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	middleware.WriteError(w, r, status, message)
}

// fail maps err to a status and a single user-visible message. The
// server's own message wins over fallback when there is one.
func (h responder) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(fallback, fields...)
	} else {
		h.logger.Warn(fallback, fields...)
	}
	h.respondError(w, r, status, domain.UserMessage(err, fallback))
}

func statusFor(err error) int {
	var apiErr *domain.APIError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusUnauthorized:
		return apiErr.Status
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrShapeMismatch), errors.Is(err, domain.ErrBackend):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON body into v
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewValidationError("", "invalid request body")
	}
	return nil
}
