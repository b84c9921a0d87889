package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
)

type disputeEntry struct {
	mu sync.Mutex
	d  *domain.Dispute
}

// MemoryDisputeStore is the in-process dispute registry. The index lock
// guards the maps; each dispute has its own lock for mutations.
type MemoryDisputeStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*disputeEntry
	byCode map[string]uuid.UUID
}

func NewMemoryDisputeStore() *MemoryDisputeStore {
	return &MemoryDisputeStore{
		byID:   make(map[uuid.UUID]*disputeEntry),
		byCode: make(map[string]uuid.UUID),
	}
}

func (s *MemoryDisputeStore) Create(ctx context.Context, d *domain.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byCode[d.ShareCode]; taken {
		return ErrConflict
	}
	if _, exists := s.byID[d.ID]; exists {
		return ErrConflict
	}
	s.byID[d.ID] = &disputeEntry{d: d.Clone()}
	s.byCode[d.ShareCode] = d.ID
	return nil
}

func (s *MemoryDisputeStore) entry(id uuid.UUID) (*disputeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

func (s *MemoryDisputeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.d.Clone(), nil
}

func (s *MemoryDisputeStore) GetByShareCode(ctx context.Context, code string) (*domain.Dispute, error) {
	s.mu.RLock()
	id, ok := s.byCode[code]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *MemoryDisputeStore) snapshot(match func(*domain.Dispute) bool) []domain.Dispute {
	s.mu.RLock()
	entries := make([]*disputeEntry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]domain.Dispute, 0)
	for _, e := range entries {
		e.mu.Lock()
		if match(e.d) {
			out = append(out, *e.d.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryDisputeStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Dispute, error) {
	return s.snapshot(func(d *domain.Dispute) bool { return d.IsParty(userID) }), nil
}

func (s *MemoryDisputeStore) List(ctx context.Context, limit int) ([]domain.Dispute, error) {
	all := s.snapshot(func(*domain.Dispute) bool { return true })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryDisputeStore) Update(ctx context.Context, id uuid.UUID, fn domain.DisputeMutation) (*domain.Dispute, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working := e.d.Clone()
	if err := fn(working); err != nil {
		return e.d.Clone(), err
	}
	e.d = working
	return working.Clone(), nil
}

func (s *MemoryDisputeStore) ListPendingResolution(ctx context.Context) ([]uuid.UUID, error) {
	pending := s.snapshot(func(d *domain.Dispute) bool {
		return !d.IsResolved() && d.ResolutionState == domain.ResolutionStatePending
	})
	ids := make([]uuid.UUID, len(pending))
	for i, d := range pending {
		ids[i] = d.ID
	}
	return ids, nil
}

// MemoryUserStore keeps accounts in process memory.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*domain.User
	byEmail map[string]uuid.UUID
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[uuid.UUID]*domain.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *MemoryUserStore) Create(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[u.Email]; taken {
		return ErrConflict
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	c := *u
	s.byID[u.ID] = &c
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *MemoryUserStore) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tokenHash == "" {
		return nil, ErrNotFound
	}
	for _, u := range s.byID {
		if u.TokenHash == tokenHash {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryUserStore) UpdateTokenHash(ctx context.Context, id uuid.UUID, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.TokenHash = tokenHash
	return nil
}

func (s *MemoryUserStore) IncrementUsage(ctx context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.UsageCount++
	return u.UsageCount, nil
}
