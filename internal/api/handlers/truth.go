package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/mediationai/mediator/internal/service"
	"go.uber.org/zap"
)

const (
	multipartMemory = 8 << 20
	// bodyOverhead covers the text field and encoding around attachments.
	bodyOverhead = 1 << 20
)

type TruthHandler struct {
	svc *service.DisputeService
	// maxAttachment and maxRequestBytes are zero when uploads are unlimited.
	maxAttachment   int64
	maxRequestBytes int64
	logger          *zap.Logger
}

func NewTruthHandler(svc *service.DisputeService, maxAttachmentBytes int64, logger *zap.Logger) *TruthHandler {
	return &TruthHandler{
		svc:             svc,
		maxAttachment:   maxAttachmentBytes,
		maxRequestBytes: requestBudget(maxAttachmentBytes),
		logger:          logger,
	}
}

// requestBudget is the largest truth body that can carry MaxAttachments files
// of maxAttachment bytes each. JSON bodies carry them base64 encoded, which
// also bounds the raw multipart form.
func requestBudget(maxAttachment int64) int64 {
	if maxAttachment <= 0 {
		return 0
	}
	encoded := (maxAttachment + 2) / 3 * 4
	return service.MaxAttachments*encoded + bodyOverhead
}

type attachmentPayload struct {
	FileName    string `json:"file_name"`
	Type        string `json:"type"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type submitTruthRequest struct {
	Text        string              `json:"text"`
	Attachments []attachmentPayload `json:"attachments"`
}

// Submit accepts either a JSON body with base64 attachment data or a
// multipart form with a text field and files under "attachments".
func (h *TruthHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id", "dispute id")
	if !ok {
		return
	}

	if h.maxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	}

	var in service.TruthInput
	var err error
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, err = h.parseMultipart(r)
	} else {
		in, err = parseJSONTruth(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	truth, err := h.svc.SubmitTruth(r.Context(), id, user.ID, in)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "submit truth")
		return
	}
	writeJSON(w, http.StatusCreated, truth)
}

func parseJSONTruth(r *http.Request) (service.TruthInput, error) {
	var req submitTruthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return service.TruthInput{}, errors.New("invalid request body")
	}
	in := service.TruthInput{Text: req.Text}
	for _, a := range req.Attachments {
		in.Attachments = append(in.Attachments, service.AttachmentUpload{
			FileName:    a.FileName,
			Type:        a.Type,
			ContentType: a.ContentType,
			Data:        a.Data,
		})
	}
	return in, nil
}

func (h *TruthHandler) parseMultipart(r *http.Request) (service.TruthInput, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return service.TruthInput{}, errors.New("invalid multipart body")
	}
	in := service.TruthInput{Text: r.FormValue("text")}

	for i, fh := range r.MultipartForm.File["attachments"] {
		if h.maxAttachment > 0 && fh.Size > h.maxAttachment {
			return service.TruthInput{}, fmt.Errorf("attachment %q exceeds %d bytes", fh.Filename, h.maxAttachment)
		}
		f, err := fh.Open()
		if err != nil {
			return service.TruthInput{}, fmt.Errorf("unreadable attachment %q", fh.Filename)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return service.TruthInput{}, fmt.Errorf("unreadable attachment %q", fh.Filename)
		}
		in.Attachments = append(in.Attachments, service.AttachmentUpload{
			FileName:    fh.Filename,
			Type:        r.FormValue("attachment_type_" + strconv.Itoa(i)),
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return in, nil
}

func (h *TruthHandler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id", "dispute id")
	if !ok {
		return
	}
	attID, ok := uuidParam(w, r, "attachmentID", "attachment id")
	if !ok {
		return
	}

	att, data, err := h.svc.GetAttachment(r.Context(), id, attID, user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get attachment")
		return
	}

	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.FileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
