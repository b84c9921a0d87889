package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mediationai/mediator/internal/domain"
	"go.uber.org/zap"
)

type contextKey string

const userContextKey contextKey = "user"

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userContextKey).(*domain.User)
	return u
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter for browser WebSocket clients.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, true
		}
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// TokenAuth rejects requests without a valid session token. Only rejected
// credentials answer 401; lookup failures are server errors.
func TokenAuth(auth Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if errors.Is(err, domain.ErrForbidden) {
				writeError(w, http.StatusUnauthorized, "invalid session token")
				return
			}
			if err != nil {
				logger.Error("failed to authenticate session",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			setRequestUser(r.Context(), user.ID.String())
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// AdminKeyAuth guards the admin console. An empty key disables it.
func AdminKeyAuth(key string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(key))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				writeError(w, http.StatusNotFound, "admin console disabled")
				return
			}
			token, ok := bearerToken(r)
			got := sha256.Sum256([]byte(token))
			if !ok || subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid admin key")
				return
			}
			setRequestUser(r.Context(), "admin")
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
