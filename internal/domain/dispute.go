package domain

import (
	"time"

	"github.com/google/uuid"
)

type DisputeStatus string

const (
	DisputeStatusInviteSent DisputeStatus = "invite_sent"
	DisputeStatusInProgress DisputeStatus = "in_progress"
	DisputeStatusResolved   DisputeStatus = "resolved"
)

func (s DisputeStatus) IsValid() bool {
	switch s {
	case DisputeStatusInviteSent, DisputeStatusInProgress, DisputeStatusResolved:
		return true
	}
	return false
}

// ResolutionState tracks the background generation step. It is independent
// of DisputeStatus: a dispute stays in_progress while generation is pending
// or after it failed.
type ResolutionState string

const (
	ResolutionStateNone    ResolutionState = ""
	ResolutionStatePending ResolutionState = "pending"
	ResolutionStateFailed  ResolutionState = "failed"
)

type AttachmentType string

const (
	AttachmentTypeImage    AttachmentType = "image"
	AttachmentTypeDocument AttachmentType = "document"
)

func ValidAttachmentType(t string) bool {
	switch AttachmentType(t) {
	case AttachmentTypeImage, AttachmentTypeDocument:
		return true
	}
	return false
}

type Attachment struct {
	ID          uuid.UUID      `json:"id"`
	FileName    string         `json:"file_name"`
	Type        AttachmentType `json:"type"`
	ContentType string         `json:"content_type"`
	Size        int64          `json:"size"`
	Ref         string         `json:"-"`
}

type Truth struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

type Resolution struct {
	ID        uuid.UUID `json:"id"`
	Summary   string    `json:"summary"`
	Decision  string    `json:"decision"`
	Rationale string    `json:"rationale"`
	CreatedAt time.Time `json:"created_at"`
}

type Dispute struct {
	ID                 uuid.UUID       `json:"id"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	ShareCode          string          `json:"share_code"`
	ShareLink          string          `json:"share_link"`
	PartyAID           uuid.UUID       `json:"party_a_id"`
	PartyBID           *uuid.UUID      `json:"party_b_id,omitempty"`
	Truths             []Truth         `json:"truths"`
	Resolution         *Resolution     `json:"resolution,omitempty"`
	Status             DisputeStatus   `json:"status"`
	ResolutionState    ResolutionState `json:"resolution_state,omitempty"`
	ResolutionError    string          `json:"resolution_error,omitempty"`
	ResolutionAttempts int             `json:"resolution_attempts"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	JoinedAt           *time.Time      `json:"joined_at,omitempty"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty"`
}

// NewDispute returns a dispute in its initial invite_sent state.
func NewDispute(title, description, shareCode string, creator uuid.UUID, now time.Time) *Dispute {
	return &Dispute{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		ShareCode:   shareCode,
		PartyAID:    creator,
		Truths:      []Truth{},
		Status:      DisputeStatusInviteSent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (d *Dispute) IsParty(userID uuid.UUID) bool {
	if d.PartyAID == userID {
		return true
	}
	return d.PartyBID != nil && *d.PartyBID == userID
}

func (d *Dispute) IsResolved() bool {
	return d.Resolution != nil
}

func (d *Dispute) HasTruthFrom(userID uuid.UUID) bool {
	for _, t := range d.Truths {
		if t.UserID == userID {
			return true
		}
	}
	return false
}

// Submitters returns the number of distinct users with a truth on file.
func (d *Dispute) Submitters() int {
	seen := make(map[uuid.UUID]struct{}, len(d.Truths))
	for _, t := range d.Truths {
		seen[t.UserID] = struct{}{}
	}
	return len(seen)
}

// FindAttachment looks up an attachment across all truths.
func (d *Dispute) FindAttachment(id uuid.UUID) (*Attachment, bool) {
	for i := range d.Truths {
		for j := range d.Truths[i].Attachments {
			if d.Truths[i].Attachments[j].ID == id {
				return &d.Truths[i].Attachments[j], true
			}
		}
	}
	return nil, false
}

// Join records userID as the second party.
func (d *Dispute) Join(userID uuid.UUID, now time.Time) error {
	if d.PartyAID == userID {
		return ErrSelfJoin
	}
	if d.PartyBID != nil {
		return ErrAlreadyJoined
	}
	if d.IsResolved() {
		return ErrAlreadyResolved
	}
	id := userID
	d.PartyBID = &id
	d.JoinedAt = &now
	d.Status = DisputeStatusInProgress
	d.UpdatedAt = now
	return nil
}

// CanSubmitTruth reports why userID may not add a truth, if anything.
func (d *Dispute) CanSubmitTruth(userID uuid.UUID) error {
	if d.IsResolved() {
		return ErrAlreadyResolved
	}
	if !d.IsParty(userID) {
		return ErrNotAParty
	}
	if d.HasTruthFrom(userID) {
		return ErrDuplicateTruth
	}
	return nil
}

// AddTruth appends t and reports whether the caller must start resolution
// generation. It returns true at most once per generation cycle: the flip to
// ResolutionStatePending happens in the same call that observes the second
// distinct submitter.
func (d *Dispute) AddTruth(t Truth) (bool, error) {
	if err := d.CanSubmitTruth(t.UserID); err != nil {
		return false, err
	}
	d.Truths = append(d.Truths, t)
	d.UpdatedAt = t.SubmittedAt

	if d.Submitters() < 2 || d.ResolutionState == ResolutionStatePending {
		return false, nil
	}
	d.beginResolution()
	return true, nil
}

// RetryResolution moves a failed generation back to pending.
func (d *Dispute) RetryResolution(now time.Time) error {
	switch {
	case d.IsResolved():
		return ErrAlreadyResolved
	case d.ResolutionState == ResolutionStatePending:
		return ErrResolutionPending
	case d.Submitters() < 2:
		return ErrAwaitingTruths
	}
	d.beginResolution()
	d.UpdatedAt = now
	return nil
}

func (d *Dispute) beginResolution() {
	d.ResolutionState = ResolutionStatePending
	d.ResolutionError = ""
}

// ApplyResolution attaches r and closes the dispute. A dispute that already
// carries a resolution is left untouched.
func (d *Dispute) ApplyResolution(r *Resolution) error {
	if d.IsResolved() {
		return ErrAlreadyResolved
	}
	d.Resolution = r
	d.Status = DisputeStatusResolved
	d.ResolutionState = ResolutionStateNone
	d.ResolutionError = ""
	d.ResolutionAttempts++
	resolvedAt := r.CreatedAt
	d.ResolvedAt = &resolvedAt
	d.UpdatedAt = r.CreatedAt
	return nil
}

// FailResolution records a failed generation. The dispute stays in
// progress so a party can retry.
func (d *Dispute) FailResolution(reason string, now time.Time) error {
	if d.IsResolved() {
		return ErrAlreadyResolved
	}
	d.ResolutionState = ResolutionStateFailed
	d.ResolutionError = reason
	d.ResolutionAttempts++
	d.UpdatedAt = now
	return nil
}

// Clone returns a deep copy safe to hand out of a store.
func (d *Dispute) Clone() *Dispute {
	c := *d
	if d.PartyBID != nil {
		id := *d.PartyBID
		c.PartyBID = &id
	}
	if d.JoinedAt != nil {
		t := *d.JoinedAt
		c.JoinedAt = &t
	}
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		c.ResolvedAt = &t
	}
	if d.Resolution != nil {
		r := *d.Resolution
		c.Resolution = &r
	}
	c.Truths = make([]Truth, len(d.Truths))
	for i, t := range d.Truths {
		t.Attachments = append([]Attachment(nil), t.Attachments...)
		c.Truths[i] = t
	}
	return &c
}
