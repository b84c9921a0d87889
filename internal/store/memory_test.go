package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDisputeStore_CreateAndGet(t *testing.T) {
	s := NewMemoryDisputeStore()
	ctx := context.Background()
	d := domain.NewDispute("Rent dispute", "desc", "ABC234", uuid.New(), time.Now())

	require.NoError(t, s.Create(ctx, d))

	byID, err := s.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Title, byID.Title)

	byCode, err := s.GetByShareCode(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, d.ID, byCode.ID)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetByShareCode(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDisputeStore_ShareCodeCollision(t *testing.T) {
	s := NewMemoryDisputeStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, domain.NewDispute("one", "", "SAME22", uuid.New(), time.Now())))
	err := s.Create(ctx, domain.NewDispute("two", "", "SAME22", uuid.New(), time.Now()))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryDisputeStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryDisputeStore()
	ctx := context.Background()
	d := domain.NewDispute("Rent dispute", "desc", "ABC234", uuid.New(), time.Now())
	require.NoError(t, s.Create(ctx, d))

	got, _ := s.GetByID(ctx, d.ID)
	got.Title = "mutated"
	got.Truths = append(got.Truths, domain.Truth{ID: uuid.New()})

	again, _ := s.GetByID(ctx, d.ID)
	assert.Equal(t, "Rent dispute", again.Title)
	assert.Empty(t, again.Truths)
}

func TestMemoryDisputeStore_UpdateAbortsOnError(t *testing.T) {
	s := NewMemoryDisputeStore()
	ctx := context.Background()
	d := domain.NewDispute("Rent dispute", "desc", "ABC234", uuid.New(), time.Now())
	require.NoError(t, s.Create(ctx, d))

	boom := errors.New("boom")
	unchanged, err := s.Update(ctx, d.ID, func(d *domain.Dispute) error {
		d.Title = "half-applied"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "Rent dispute", unchanged.Title)

	stored, _ := s.GetByID(ctx, d.ID)
	assert.Equal(t, "Rent dispute", stored.Title)

	_, err = s.Update(ctx, uuid.New(), func(*domain.Dispute) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDisputeStore_UpdateSerializesJoins(t *testing.T) {
	s := NewMemoryDisputeStore()
	ctx := context.Background()
	d := domain.NewDispute("Rent dispute", "desc", "ABC234", uuid.New(), time.Now())
	require.NoError(t, s.Create(ctx, d))

	const joiners = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, d.ID, func(d *domain.Dispute) error {
				return d.Join(uuid.New(), time.Now())
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	stored, _ := s.GetByID(ctx, d.ID)
	assert.NotNil(t, stored.PartyBID)
	assert.Equal(t, domain.DisputeStatusInProgress, stored.Status)
}

func TestMemoryDisputeStore_ListByUserAndPending(t *testing.T) {
	s := NewMemoryDisputeStore()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	older := domain.NewDispute("older", "", "AAAAA2", a, time.Now().Add(-time.Hour))
	newer := domain.NewDispute("newer", "", "BBBBB3", a, time.Now())
	other := domain.NewDispute("other", "", "CCCCC4", uuid.New(), time.Now())
	for _, d := range []*domain.Dispute{older, newer, other} {
		require.NoError(t, s.Create(ctx, d))
	}

	mine, err := s.ListByUser(ctx, a)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "newer", mine[0].Title)

	_, err = s.Update(ctx, newer.ID, func(d *domain.Dispute) error {
		if err := d.Join(b, time.Now()); err != nil {
			return err
		}
		_, _ = d.AddTruth(domain.Truth{ID: uuid.New(), UserID: a, SubmittedAt: time.Now()})
		_, err := d.AddTruth(domain.Truth{ID: uuid.New(), UserID: b, SubmittedAt: time.Now()})
		return err
	})
	require.NoError(t, err)

	pending, err := s.ListPendingResolution(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{newer.ID}, pending)

	all, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryUserStore(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	u := &domain.User{Email: "a@example.com", PasswordHash: "x"}
	require.NoError(t, s.Create(ctx, u))
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	assert.ErrorIs(t, s.Create(ctx, &domain.User{Email: "a@example.com"}), ErrConflict)

	require.NoError(t, s.UpdateTokenHash(ctx, u.ID, "hash-1"))
	byToken, err := s.GetByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byToken.ID)

	_, err = s.GetByTokenHash(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.IncrementUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	byEmail, err := s.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, byEmail.UsageCount)
}
