package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/mediationai/mediator/internal/payment"
	"github.com/mediationai/mediator/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUserService_SignUpAndAuthenticate(t *testing.T) {
	s := NewUserService(store.NewMemoryUserStore(), zap.NewNop())
	ctx := context.Background()

	sess, err := s.SignUp(ctx, " Alice@Example.com ", "correct-horse", "")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", sess.User.Email)
	assert.Equal(t, "alice", sess.User.DisplayName)
	assert.True(t, strings.HasPrefix(sess.Token, tokenPrefix))
	assert.NotEqual(t, sess.Token, sess.User.TokenHash)

	u, err := s.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)

	_, err = s.Authenticate(ctx, "mt_unknown")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestUserService_SignUp_Validation(t *testing.T) {
	s := NewUserService(store.NewMemoryUserStore(), zap.NewNop())
	ctx := context.Background()

	_, err := s.SignUp(ctx, "not-an-email", "correct-horse", "")
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = s.SignUp(ctx, "bob@example.com", "short", "")
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = s.SignUp(ctx, "bob@example.com", "correct-horse", "Bob")
	require.NoError(t, err)
	_, err = s.SignUp(ctx, "BOB@example.com", "another-pass", "Bobby")
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestUserService_SignIn_RotatesToken(t *testing.T) {
	s := NewUserService(store.NewMemoryUserStore(), zap.NewNop())
	ctx := context.Background()

	first, err := s.SignUp(ctx, "carol@example.com", "correct-horse", "Carol")
	require.NoError(t, err)

	_, err = s.SignIn(ctx, "carol@example.com", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = s.SignIn(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	second, err := s.SignIn(ctx, "carol@example.com", "correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = s.Authenticate(ctx, first.Token)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	u, err := s.Authenticate(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, "Carol", u.DisplayName)
}

func TestBillingGate_Authorize(t *testing.T) {
	users := store.NewMemoryUserStore()
	gw := payment.NewMockGateway(true)
	gate := NewBillingGate(users, gw, 2, 250, zap.NewNop())
	ctx := context.Background()

	u := &domain.User{Email: "dave@example.com"}
	require.NoError(t, users.Create(ctx, u))

	require.NoError(t, gate.Authorize(ctx, u.ID, "create_dispute"))
	require.NoError(t, gate.Authorize(ctx, u.ID, "submit_truth"))
	assert.Empty(t, gw.Charges())

	require.NoError(t, gate.Authorize(ctx, u.ID, "create_dispute"))
	require.Len(t, gw.Charges(), 1)
	assert.Equal(t, int64(250), gw.Charges()[0].AmountCents)

	gw.SetApprove(false)
	err := gate.Authorize(ctx, u.ID, "create_dispute")
	assert.ErrorIs(t, err, domain.ErrPaymentRequired)

	got, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.UsageCount)
}

func TestBillingGate_UnknownUser(t *testing.T) {
	gate := NewBillingGate(store.NewMemoryUserStore(), payment.NewMockGateway(true), 1, 100, zap.NewNop())
	err := gate.Authorize(context.Background(), uuid.New(), "create_dispute")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

// scriptedGateway is a testify mock of domain.PaymentGateway.
type scriptedGateway struct {
	mock.Mock
}

func (g *scriptedGateway) Charge(ctx context.Context, userID uuid.UUID, amountCents int64) (bool, error) {
	args := g.Called(ctx, userID, amountCents)
	return args.Bool(0), args.Error(1)
}

func TestBillingGate_GatewayError(t *testing.T) {
	users := store.NewMemoryUserStore()
	ctx := context.Background()
	u := &domain.User{Email: "ed@example.com"}
	require.NoError(t, users.Create(ctx, u))

	gw := &scriptedGateway{}
	gw.On("Charge", mock.Anything, u.ID, int64(499)).Return(false, errors.New("gateway unreachable")).Once()
	gate := NewBillingGate(users, gw, 0, 499, zap.NewNop())

	err := gate.Authorize(ctx, u.ID, "submit_truth")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPaymentRequired)
	gw.AssertExpectations(t)
}
