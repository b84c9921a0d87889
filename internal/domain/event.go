package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventDisputeCreated    EventType = "dispute.created"
	EventDisputeJoined     EventType = "dispute.joined"
	EventTruthSubmitted    EventType = "truth.submitted"
	EventResolutionPending EventType = "resolution.pending"
	EventResolutionFailed  EventType = "resolution.failed"
	EventDisputeResolved   EventType = "dispute.resolved"
)

// Event is a status-change notification pushed to subscribers of a dispute.
type Event struct {
	Type       EventType     `json:"type"`
	DisputeID  uuid.UUID     `json:"dispute_id"`
	Status     DisputeStatus `json:"status"`
	ActorID    *uuid.UUID    `json:"actor_id,omitempty"`
	Message    string        `json:"message,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
	Origin     string        `json:"origin,omitempty"`
}

// NewEvent builds an event describing the current state of d.
func NewEvent(t EventType, d *Dispute, actor *uuid.UUID) Event {
	return Event{
		Type:       t,
		DisputeID:  d.ID,
		Status:     d.Status,
		ActorID:    actor,
		OccurredAt: time.Now().UTC(),
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, e Event)
}
