package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticAuth struct {
	token string
	user  *domain.User
	err   error
}

func (a staticAuth) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if a.err != nil {
		return nil, a.err
	}
	if token != a.token {
		return nil, domain.ErrInvalidCredentials
	}
	return a.user, nil
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestTokenAuth(t *testing.T) {
	user := &domain.User{ID: uuid.New()}
	var seen *domain.User
	h := TokenAuth(staticAuth{token: "mt_good", user: user}, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic mt_good", "", http.StatusUnauthorized},
		{"bad token", "Bearer mt_bad", "", http.StatusUnauthorized},
		{"header", "Bearer mt_good", "", http.StatusOK},
		{"query", "", "?token=mt_good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/v1/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, user.ID, seen.ID)
			}
		})
	}
}

func TestTokenAuth_LookupFailureIsServerError(t *testing.T) {
	called := false
	auth := staticAuth{err: errors.New("connection refused")}
	h := TokenAuth(auth, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer mt_good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, called)
}

func TestAdminKeyAuth(t *testing.T) {
	h := AdminKeyAuth("s3cret")(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/disputes", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	disabled := AdminKeyAuth("")(http.HandlerFunc(okHandler))
	rec = httptest.NewRecorder()
	disabled.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := rl.Middleware(http.HandlerFunc(okHandler))

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	assert.Equal(t, 1, rl.Len())
	assert.Equal(t, 0, rl.Cleanup(time.Minute))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, rl.Cleanup(time.Millisecond))
	assert.Equal(t, 0, rl.Len())
}

func TestMetricsCollector(t *testing.T) {
	var reqs, errs atomic.Int64
	mc := NewMetricsCollector(&reqs, &errs)

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError} {
		h := mc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	assert.Equal(t, int64(3), reqs.Load())
	assert.Equal(t, int64(2), errs.Load())
	assert.Equal(t, int64(1), mc.ServerErrors())
}

func TestRequestID(t *testing.T) {
	var id string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}
