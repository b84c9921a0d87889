package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/mediationai/mediator/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestBudget(t *testing.T) {
	assert.Equal(t, int64(0), requestBudget(0))
	assert.Equal(t, int64(service.MaxAttachments*4+bodyOverhead), requestBudget(3))
	assert.Equal(t, int64(service.MaxAttachments*8+bodyOverhead), requestBudget(4))
}

// joinedTruthRoute returns a dispute between two users and a router serving
// truth submissions as its creator.
func joinedTruthRoute(t *testing.T, maxAttachmentBytes int64) (*domain.Dispute, http.Handler) {
	t.Helper()
	deps := newTestDeps(t, maxAttachmentBytes)
	ctx := context.Background()
	alice, bob := deps.newUser(t, "alice"), deps.newUser(t, "bob")

	d, err := deps.svc.Create(ctx, alice.ID, "Storage unit", "")
	require.NoError(t, err)
	_, err = deps.svc.Join(ctx, d.ShareCode, bob.ID)
	require.NoError(t, err)

	h := NewTruthHandler(deps.svc, maxAttachmentBytes, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/disputes/{id}/truths", asUser(alice, h.Submit))
	return d, r
}

func TestTruthSubmit_MultipartWithoutSizeLimit(t *testing.T) {
	d, r := joinedTruthRoute(t, 0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("text", "the lock was already broken"))
	fw, err := mw.CreateFormFile("attachments", "lock.jpg")
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte("j"), 4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/disputes/"+d.ID.String()+"/truths", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var truth domain.Truth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &truth))
	require.Len(t, truth.Attachments, 1)
	assert.Equal(t, int64(4096), truth.Attachments[0].Size)
}

func TestTruthSubmit_JSONAtAttachmentLimit(t *testing.T) {
	const limit = 2 << 20
	d, r := joinedTruthRoute(t, limit)

	atts := make([]attachmentPayload, service.MaxAttachments)
	for i := range atts {
		atts[i] = attachmentPayload{
			FileName:    "scan.pdf",
			ContentType: "application/pdf",
			Data:        bytes.Repeat([]byte{byte('a' + i)}, limit),
		}
	}
	payload, err := json.Marshal(submitTruthRequest{Text: "all five receipts", Attachments: atts})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/disputes/"+d.ID.String()+"/truths", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var truth domain.Truth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &truth))
	assert.Len(t, truth.Attachments, service.MaxAttachments)
}
