package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/mediationai/mediator/internal/store"
	"go.uber.org/zap"
)

// BillingGate meters billable actions: creating a dispute and submitting a
// truth. Each user gets freeActions for free; every action after that must
// be paid for through the gateway.
type BillingGate struct {
	users       domain.UserStore
	gateway     domain.PaymentGateway
	freeActions int
	priceCents  int64
	logger      *zap.Logger
}

func NewBillingGate(users domain.UserStore, gateway domain.PaymentGateway, freeActions int, priceCents int64, logger *zap.Logger) *BillingGate {
	return &BillingGate{
		users:       users,
		gateway:     gateway,
		freeActions: freeActions,
		priceCents:  priceCents,
		logger:      logger,
	}
}

// Authorize counts one action for userID and charges for it once the free
// allowance is used up. A declined charge returns domain.ErrChargeDeclined.
func (g *BillingGate) Authorize(ctx context.Context, userID uuid.UUID, action string) error {
	used, err := g.users.IncrementUsage(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("record usage: %w", err)
	}
	if used <= g.freeActions {
		return nil
	}

	approved, err := g.gateway.Charge(ctx, userID, g.priceCents)
	if err != nil {
		return fmt.Errorf("charge: %w", err)
	}
	if !approved {
		g.logger.Info("charge declined",
			zap.String("user_id", userID.String()),
			zap.String("action", action),
			zap.Int("usage", used))
		return domain.ErrChargeDeclined
	}

	g.logger.Debug("action charged",
		zap.String("user_id", userID.String()),
		zap.String("action", action),
		zap.Int64("amount_cents", g.priceCents))
	return nil
}
