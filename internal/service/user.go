package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/mediationai/mediator/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenPrefix       = "mt_"
	minPasswordLength = 8
)

// Session is returned on sign-up and sign-in. Token is shown once; only its
// hash is stored.
type Session struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

type UserService struct {
	store  domain.UserStore
	logger *zap.Logger
}

func NewUserService(s domain.UserStore, logger *zap.Logger) *UserService {
	return &UserService{store: s, logger: logger}
}

// HashToken returns the stored form of a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return tokenPrefix + hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is not valid", domain.ErrInvalid)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalid, minPasswordLength)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		TokenHash:    HashToken(token),
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}

	s.logger.Info("user signed up", zap.String("user_id", u.ID.String()))
	return &Session{User: u, Token: token}, nil
}

// SignIn verifies credentials and rotates the session token.
func (s *UserService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	u.TokenHash = HashToken(token)
	if err := s.store.UpdateTokenHash(ctx, u.ID, u.TokenHash); err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if !strings.HasPrefix(token, tokenPrefix) {
		return nil, domain.ErrInvalidCredentials
	}
	u, err := s.store.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	return u, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
