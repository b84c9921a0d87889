package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mediationai/mediator/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DisputeStore struct {
	db *pgxpool.Pool
}

func NewDisputeStore(db *pgxpool.Pool) *DisputeStore {
	return &DisputeStore{db: db}
}

// attachmentRecord is the stored form of an attachment; unlike the API form
// it keeps the blob reference.
type attachmentRecord struct {
	ID          uuid.UUID             `json:"id"`
	FileName    string                `json:"file_name"`
	Type        domain.AttachmentType `json:"type"`
	ContentType string                `json:"content_type"`
	Size        int64                 `json:"size"`
	Ref         string                `json:"ref"`
}

func encodeAttachments(atts []domain.Attachment) ([]byte, error) {
	recs := make([]attachmentRecord, len(atts))
	for i, a := range atts {
		recs[i] = attachmentRecord(a)
	}
	return json.Marshal(recs)
}

func decodeAttachments(raw []byte) ([]domain.Attachment, error) {
	var recs []attachmentRecord
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, err
		}
	}
	atts := make([]domain.Attachment, len(recs))
	for i, r := range recs {
		atts[i] = domain.Attachment(r)
	}
	return atts, nil
}

const disputeColumns = `id, title, description, share_code, share_link, party_a_id, party_b_id, status,
	resolution_state, resolution_error, resolution_attempts, resolution, created_at, updated_at, joined_at, resolved_at`

func scanDispute(row pgx.Row) (*domain.Dispute, error) {
	d := &domain.Dispute{}
	var status, state string
	var resolution []byte
	err := row.Scan(&d.ID, &d.Title, &d.Description, &d.ShareCode, &d.ShareLink, &d.PartyAID, &d.PartyBID, &status,
		&state, &d.ResolutionError, &d.ResolutionAttempts, &resolution, &d.CreatedAt, &d.UpdatedAt, &d.JoinedAt, &d.ResolvedAt)
	if err != nil {
		return nil, err
	}
	d.Status = domain.DisputeStatus(status)
	d.ResolutionState = domain.ResolutionState(state)
	if len(resolution) > 0 {
		d.Resolution = &domain.Resolution{}
		if err := json.Unmarshal(resolution, d.Resolution); err != nil {
			return nil, fmt.Errorf("decode resolution: %w", err)
		}
	}
	return d, nil
}

func (s *DisputeStore) loadTruths(ctx context.Context, q querier, d *domain.Dispute) error {
	rows, err := q.Query(ctx,
		`SELECT id, user_id, body, attachments, submitted_at
		 FROM truths WHERE dispute_id = $1 ORDER BY submitted_at, id`,
		d.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	d.Truths = []domain.Truth{}
	for rows.Next() {
		var t domain.Truth
		var raw []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.Text, &raw, &t.SubmittedAt); err != nil {
			return err
		}
		if t.Attachments, err = decodeAttachments(raw); err != nil {
			return fmt.Errorf("decode attachments: %w", err)
		}
		d.Truths = append(d.Truths, t)
	}
	return rows.Err()
}

func (s *DisputeStore) get(ctx context.Context, q querier, query string, arg any) (*domain.Dispute, error) {
	d, err := scanDispute(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.loadTruths(ctx, q, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DisputeStore) Create(ctx context.Context, d *domain.Dispute) error {
	var resolution []byte
	if d.Resolution != nil {
		var err error
		if resolution, err = json.Marshal(d.Resolution); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO disputes (id, title, description, share_code, share_link, party_a_id, party_b_id, status,
		   resolution_state, resolution_error, resolution_attempts, resolution, created_at, updated_at, joined_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		d.ID, d.Title, d.Description, d.ShareCode, d.ShareLink, d.PartyAID, d.PartyBID, string(d.Status),
		string(d.ResolutionState), d.ResolutionError, d.ResolutionAttempts, resolution, d.CreatedAt, d.UpdatedAt, d.JoinedAt, d.ResolvedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}

	for _, t := range d.Truths {
		if err := insertTruth(ctx, tx, d.ID, t); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertTruth(ctx context.Context, q querier, disputeID uuid.UUID, t domain.Truth) error {
	raw, err := encodeAttachments(t.Attachments)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx,
		`INSERT INTO truths (id, dispute_id, user_id, body, attachments, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, disputeID, t.UserID, t.Text, raw, t.SubmittedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert truth: %w", err)
	}
	return nil
}

func (s *DisputeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	return s.get(ctx, s.db, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
}

func (s *DisputeStore) GetByShareCode(ctx context.Context, code string) (*domain.Dispute, error) {
	return s.get(ctx, s.db, `SELECT `+disputeColumns+` FROM disputes WHERE share_code = $1`, code)
}

func (s *DisputeStore) list(ctx context.Context, query string, args ...any) ([]domain.Dispute, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var disputes []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range disputes {
		if err := s.loadTruths(ctx, s.db, &disputes[i]); err != nil {
			return nil, err
		}
	}
	return disputes, nil
}

func (s *DisputeStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Dispute, error) {
	return s.list(ctx,
		`SELECT `+disputeColumns+` FROM disputes
		 WHERE party_a_id = $1 OR party_b_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
}

func (s *DisputeStore) List(ctx context.Context, limit int) ([]domain.Dispute, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx,
		`SELECT `+disputeColumns+` FROM disputes ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
}

func (s *DisputeStore) Update(ctx context.Context, id uuid.UUID, fn domain.DisputeMutation) (*domain.Dispute, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := s.get(ctx, tx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}

	known := make(map[uuid.UUID]struct{}, len(current.Truths))
	for _, t := range current.Truths {
		known[t.ID] = struct{}{}
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return current, err
	}

	var resolution []byte
	if working.Resolution != nil {
		if resolution, err = json.Marshal(working.Resolution); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE disputes SET party_b_id = $2, status = $3, resolution_state = $4, resolution_error = $5,
		   resolution_attempts = $6, resolution = $7, updated_at = $8, joined_at = $9, resolved_at = $10
		 WHERE id = $1`,
		working.ID, working.PartyBID, string(working.Status), string(working.ResolutionState), working.ResolutionError,
		working.ResolutionAttempts, resolution, working.UpdatedAt, working.JoinedAt, working.ResolvedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update dispute: %w", err)
	}

	for _, t := range working.Truths {
		if _, ok := known[t.ID]; ok {
			continue
		}
		if err := insertTruth(ctx, tx, working.ID, t); err != nil {
			if errors.Is(err, ErrConflict) {
				return current, err
			}
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return working, nil
}

func (s *DisputeStore) ListPendingResolution(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM disputes WHERE resolution IS NULL AND resolution_state = $1`,
		string(domain.ResolutionStatePending),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
