package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mediationai/mediator/internal/domain"
	"github.com/mediationai/mediator/internal/service"
	"go.uber.org/zap"
)

type DisputeHandler struct {
	svc    *service.DisputeService
	logger *zap.Logger
}

func NewDisputeHandler(svc *service.DisputeService, logger *zap.Logger) *DisputeHandler {
	return &DisputeHandler{svc: svc, logger: logger}
}

type createDisputeRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type joinDisputeRequest struct {
	ShareCode string `json:"share_code"`
}

type listDisputesResponse struct {
	Disputes []domain.Dispute `json:"disputes"`
	Count    int              `json:"count"`
}

func (h *DisputeHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := h.svc.Create(r.Context(), user.ID, req.Title, req.Description)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "create dispute")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DisputeHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	disputes, err := h.svc.ListForUser(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list disputes")
		return
	}
	writeJSON(w, http.StatusOK, listDisputesResponse{Disputes: disputes, Count: len(disputes)})
}

func (h *DisputeHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req joinDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := h.svc.Join(r.Context(), req.ShareCode, user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "join dispute")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DisputeHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id", "dispute id")
	if !ok {
		return
	}

	d, err := h.svc.Get(r.Context(), id, user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get dispute")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DisputeHandler) GetResolution(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id", "dispute id")
	if !ok {
		return
	}

	res, err := h.svc.GetResolution(r.Context(), id, user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get resolution")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DisputeHandler) RetryResolution(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id", "dispute id")
	if !ok {
		return
	}

	d, err := h.svc.RetryResolution(r.Context(), id, user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "retry resolution")
		return
	}
	writeJSON(w, http.StatusAccepted, d)
}
