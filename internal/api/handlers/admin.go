package handlers

import (
	"net/http"
	"strconv"

	"github.com/mediationai/mediator/internal/service"
	"go.uber.org/zap"
)

const defaultAdminListLimit = 100

// AdminHandler serves the read-only admin console.
type AdminHandler struct {
	svc    *service.DisputeService
	logger *zap.Logger
}

func NewAdminHandler(svc *service.DisputeService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

func (h *AdminHandler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	limit := defaultAdminListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	disputes, err := h.svc.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list disputes")
		return
	}
	writeJSON(w, http.StatusOK, listDisputesResponse{Disputes: disputes, Count: len(disputes)})
}

func (h *AdminHandler) GetDispute(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "dispute id")
	if !ok {
		return
	}

	d, err := h.svc.GetAny(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get dispute")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
