package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
	"go.uber.org/zap"
)

const subscriberBuffer = 16

// All subscribes to events of every dispute.
var All = uuid.Nil

type subscriber struct {
	ch chan domain.Event
}

// Hub fans events out to in-process subscribers, keyed by dispute id.
// Slow subscribers drop events rather than block publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe returns a channel of events for disputeID (or All) and a
// function that cancels the subscription and closes the channel.
func (h *Hub) Subscribe(disputeID uuid.UUID) (<-chan domain.Event, func()) {
	sub := &subscriber{ch: make(chan domain.Event, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[disputeID] == nil {
		h.subs[disputeID] = make(map[*subscriber]struct{})
	}
	h.subs[disputeID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[disputeID], sub)
			if len(h.subs[disputeID]) == 0 {
				delete(h.subs, disputeID)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers e to subscribers of its dispute and to All subscribers.
func (h *Hub) Publish(_ context.Context, e domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, key := range []uuid.UUID{e.DisputeID, All} {
		for sub := range h.subs[key] {
			select {
			case sub.ch <- e:
			default:
				h.logger.Warn("dropping event for slow subscriber",
					zap.String("dispute_id", e.DisputeID.String()),
					zap.String("type", string(e.Type)))
			}
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}
