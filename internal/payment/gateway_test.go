package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGateway(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()

	gw, err := NewGateway(ProviderMock)
	require.NoError(t, err)
	ok, err := gw.Charge(ctx, user, 499)
	require.NoError(t, err)
	assert.True(t, ok)

	gw, err = NewGateway(ProviderDecline)
	require.NoError(t, err)
	ok, err = gw.Charge(ctx, user, 499)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = NewGateway("stripe")
	assert.Error(t, err)
}

func TestMockGateway_RecordsCharges(t *testing.T) {
	gw := NewMockGateway(true)
	user := uuid.New()

	_, _ = gw.Charge(context.Background(), user, 100)
	gw.SetApprove(false)
	_, _ = gw.Charge(context.Background(), user, 200)

	charges := gw.Charges()
	require.Len(t, charges, 2)
	assert.Equal(t, Charge{UserID: user, AmountCents: 100, Approved: true}, charges[0])
	assert.Equal(t, Charge{UserID: user, AmountCents: 200, Approved: false}, charges[1])
}

func TestMockGateway_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := NewMockGateway(true)
	_, err := gw.Charge(ctx, uuid.New(), 100)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gw.Charges())
}
