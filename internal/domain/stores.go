package domain

import (
	"context"

	"github.com/google/uuid"
)

type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*User, error)
	UpdateTokenHash(ctx context.Context, id uuid.UUID, tokenHash string) error
	IncrementUsage(ctx context.Context, id uuid.UUID) (int, error)
}

// DisputeMutation is applied to a dispute under the store's per-dispute
// lock. Returning an error aborts the update and leaves the record as it was.
type DisputeMutation func(d *Dispute) error

type DisputeStore interface {
	// Create inserts d. It returns store.ErrConflict when the share code is
	// already taken.
	Create(ctx context.Context, d *Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dispute, error)
	GetByShareCode(ctx context.Context, code string) (*Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Dispute, error)
	List(ctx context.Context, limit int) ([]Dispute, error)
	// Update serializes fn against other updates of the same dispute and
	// persists the result only when fn returns nil. The returned dispute is
	// the committed state, or the unchanged state alongside fn's error.
	Update(ctx context.Context, id uuid.UUID, fn DisputeMutation) (*Dispute, error)
	// ListPendingResolution returns ids of unresolved disputes whose
	// resolution state is pending.
	ListPendingResolution(ctx context.Context) ([]uuid.UUID, error)
}

// PartyStatement is one party's truth as handed to a resolution provider.
type PartyStatement struct {
	Party       string   `json:"party"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
}

type ResolutionRequest struct {
	DisputeID   uuid.UUID        `json:"dispute_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Statements  []PartyStatement `json:"statements"`
}

// ResolutionDraft is what a provider returns before it is stamped into a
// Resolution.
type ResolutionDraft struct {
	Summary   string `json:"summary"`
	Decision  string `json:"decision"`
	Rationale string `json:"rationale"`
}

type ResolutionClient interface {
	Resolve(ctx context.Context, req ResolutionRequest) (*ResolutionDraft, error)
}

type PaymentGateway interface {
	Charge(ctx context.Context, userID uuid.UUID, amountCents int64) (bool, error)
}

type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, string, error)
	Delete(ctx context.Context, ref string) error
}
