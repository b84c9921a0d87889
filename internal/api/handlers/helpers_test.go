package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/mediationai/mediator/internal/api/middleware"
	"github.com/mediationai/mediator/internal/blob"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/mediationai/mediator/internal/events"
	"github.com/mediationai/mediator/internal/llm"
	"github.com/mediationai/mediator/internal/payment"
	"github.com/mediationai/mediator/internal/service"
	"github.com/mediationai/mediator/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testDeps struct {
	svc   *service.DisputeService
	hub   *events.Hub
	users *store.MemoryUserStore
}

func newTestDeps(t *testing.T, maxAttachmentBytes int64) *testDeps {
	t.Helper()
	logger := zap.NewNop()
	hub := events.NewHub(logger)
	disputes := store.NewMemoryDisputeStore()
	users := store.NewMemoryUserStore()
	runner := service.NewResolutionRunner(disputes, llm.NewMockClient(), hub, logger)
	t.Cleanup(runner.Stop)
	billing := service.NewBillingGate(users, payment.NewMockGateway(true), 10, 499, logger)
	svc := service.NewDisputeService(disputes, billing, blob.NewMemoryStore(), runner, hub,
		service.DisputeOptions{MaxAttachmentBytes: maxAttachmentBytes}, logger)
	return &testDeps{svc: svc, hub: hub, users: users}
}

func (d *testDeps) newUser(t *testing.T, name string) *domain.User {
	t.Helper()
	u := &domain.User{Email: name + "@example.com", DisplayName: name}
	require.NoError(t, d.users.Create(context.Background(), u))
	return u
}

// asUser runs h as if u had authenticated.
func asUser(u *domain.User, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(w, r.WithContext(middleware.WithUser(r.Context(), u)))
	}
}
