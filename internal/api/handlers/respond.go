package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/api/middleware"
	"github.com/mediationai/mediator/internal/domain"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error kind to its HTTP status. Zero means unclassified.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPaymentRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInvalid):
		return http.StatusBadRequest
	}
	return 0
}

// writeServiceError reports a classified error with its message and logs
// anything else as an internal error behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, action string) {
	if status := statusFor(err); status != 0 {
		writeError(w, status, err.Error())
		return
	}
	logger.Error("request failed",
		zap.String("action", action),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to "+action)
}

func currentUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return u, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}
