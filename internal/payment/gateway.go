package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
)

// Provider constants
const (
	ProviderMock    = "mock"
	ProviderDecline = "decline"
)

// Charge is one recorded charge attempt.
type Charge struct {
	UserID      uuid.UUID
	AmountCents int64
	Approved    bool
}

// MockGateway approves or declines every charge and records attempts.
type MockGateway struct {
	mu      sync.Mutex
	approve bool
	charges []Charge
}

func NewMockGateway(approve bool) *MockGateway {
	return &MockGateway{approve: approve}
}

func (g *MockGateway) Charge(ctx context.Context, userID uuid.UUID, amountCents int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, Charge{UserID: userID, AmountCents: amountCents, Approved: g.approve})
	return g.approve, nil
}

// SetApprove switches between approving and declining.
func (g *MockGateway) SetApprove(approve bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approve = approve
}

func (g *MockGateway) Charges() []Charge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Charge(nil), g.charges...)
}

// NewGateway creates a payment gateway based on the provider name.
func NewGateway(provider string) (domain.PaymentGateway, error) {
	switch provider {
	case ProviderMock:
		return NewMockGateway(true), nil
	case ProviderDecline:
		return NewMockGateway(false), nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s (valid options: mock, decline)", provider)
	}
}
