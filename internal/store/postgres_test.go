package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestPool connects to MEDIATOR_TEST_DATABASE_URL and migrates it.
// Tests are skipped when the variable is unset.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("MEDIATOR_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MEDIATOR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestPostgresStores_Lifecycle(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	users := NewUserStore(pool)
	disputes := NewDisputeStore(pool)

	a := &domain.User{Email: uuid.NewString() + "@example.com", PasswordHash: "x"}
	b := &domain.User{Email: uuid.NewString() + "@example.com", PasswordHash: "x"}
	require.NoError(t, users.Create(ctx, a))
	require.NoError(t, users.Create(ctx, b))

	code := uuid.NewString()[:6]
	d := domain.NewDispute("Rent dispute", "desc", code, a.ID, time.Now().UTC())
	require.NoError(t, disputes.Create(ctx, d))
	assert.ErrorIs(t, disputes.Create(ctx, domain.NewDispute("dup", "", code, a.ID, time.Now())), ErrConflict)

	_, err := disputes.Update(ctx, d.ID, func(d *domain.Dispute) error { return d.Join(b.ID, time.Now().UTC()) })
	require.NoError(t, err)

	att := domain.Attachment{ID: uuid.New(), FileName: "lease.pdf", Type: domain.AttachmentTypeDocument, Ref: "disputes/x/y"}
	_, err = disputes.Update(ctx, d.ID, func(d *domain.Dispute) error {
		_, err := d.AddTruth(domain.Truth{ID: uuid.New(), UserID: a.ID, Text: "mine", Attachments: []domain.Attachment{att}, SubmittedAt: time.Now().UTC()})
		return err
	})
	require.NoError(t, err)

	var trigger bool
	_, err = disputes.Update(ctx, d.ID, func(d *domain.Dispute) error {
		var err error
		trigger, err = d.AddTruth(domain.Truth{ID: uuid.New(), UserID: b.ID, Text: "theirs", SubmittedAt: time.Now().UTC()})
		return err
	})
	require.NoError(t, err)
	assert.True(t, trigger)

	pending, err := disputes.ListPendingResolution(ctx)
	require.NoError(t, err)
	assert.Contains(t, pending, d.ID)

	res := &domain.Resolution{ID: uuid.New(), Summary: "s", Decision: "d", Rationale: "r", CreatedAt: time.Now().UTC()}
	_, err = disputes.Update(ctx, d.ID, func(d *domain.Dispute) error { return d.ApplyResolution(res) })
	require.NoError(t, err)

	got, err := disputes.GetByShareCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusResolved, got.Status)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, res.ID, got.Resolution.ID)
	require.Len(t, got.Truths, 2)
	stored, ok := got.FindAttachment(att.ID)
	require.True(t, ok)
	assert.Equal(t, "disputes/x/y", stored.Ref)

	mine, err := disputes.ListByUser(ctx, b.ID)
	require.NoError(t, err)
	require.NotEmpty(t, mine)
	assert.Equal(t, d.ID, mine[0].ID)
}
