package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/blob"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/mediationai/mediator/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MaxAttachments is the number of files one truth may carry.
const MaxAttachments = 5

const (
	shareCodeLength      = 6
	shareCodeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxShareCodeAttempts = 8
	maxTitleLength       = 200
)

// AttachmentUpload is an attachment as received from a client.
type AttachmentUpload struct {
	FileName    string
	Type        string
	ContentType string
	Data        []byte
}

type TruthInput struct {
	Text        string
	Attachments []AttachmentUpload
}

type DisputeOptions struct {
	PublicBaseURL      string
	MaxAttachmentBytes int64
}

type DisputeService struct {
	disputes domain.DisputeStore
	billing  *BillingGate
	blobs    domain.BlobStore
	runner   *ResolutionRunner
	events   domain.EventPublisher
	opts     DisputeOptions
	logger   *zap.Logger

	newCode func() (string, error)
	// submits collapses concurrent submissions by the same party so the
	// action is billed and written once.
	submits singleflight.Group
}

func NewDisputeService(ds domain.DisputeStore, billing *BillingGate, blobs domain.BlobStore, runner *ResolutionRunner, events domain.EventPublisher, opts DisputeOptions, logger *zap.Logger) *DisputeService {
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &DisputeService{
		disputes: ds,
		billing:  billing,
		blobs:    blobs,
		runner:   runner,
		events:   events,
		opts:     opts,
		logger:   logger,
		newCode:  newShareCode,
	}
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.ErrDisputeNotFound
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: concurrent update", domain.ErrConflict)
	}
	return err
}

func newShareCode() (string, error) {
	b := make([]byte, shareCodeLength)
	limit := big.NewInt(int64(len(shareCodeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = shareCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeShareCode trims and upper-cases a user-entered code.
func NormalizeShareCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *DisputeService) Create(ctx context.Context, creator uuid.UUID, title, description string) (*domain.Dispute, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalid)
	}
	if len(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title must be at most %d characters", domain.ErrInvalid, maxTitleLength)
	}

	if err := s.billing.Authorize(ctx, creator, "create_dispute"); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxShareCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate share code: %w", err)
		}
		d := domain.NewDispute(title, strings.TrimSpace(description), code, creator, time.Now().UTC())
		d.ShareLink = s.opts.PublicBaseURL + "/join/" + code

		err = s.disputes.Create(ctx, d)
		if errors.Is(err, store.ErrConflict) {
			s.logger.Debug("share code collision, retrying", zap.String("share_code", code))
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("dispute created",
			zap.String("dispute_id", d.ID.String()),
			zap.String("user_id", creator.String()))
		s.events.Publish(ctx, domain.NewEvent(domain.EventDisputeCreated, d, &creator))
		return d, nil
	}
	return nil, fmt.Errorf("no free share code after %d attempts", maxShareCodeAttempts)
}

func (s *DisputeService) Join(ctx context.Context, code string, userID uuid.UUID) (*domain.Dispute, error) {
	code = NormalizeShareCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: share code is required", domain.ErrInvalid)
	}

	found, err := s.disputes.GetByShareCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrShareCodeNotFound
		}
		return nil, err
	}

	d, err := s.disputes.Update(ctx, found.ID, func(d *domain.Dispute) error {
		return d.Join(userID, time.Now().UTC())
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	s.logger.Info("dispute joined",
		zap.String("dispute_id", d.ID.String()),
		zap.String("user_id", userID.String()))
	s.events.Publish(ctx, domain.NewEvent(domain.EventDisputeJoined, d, &userID))
	return d, nil
}

// Get returns a dispute to one of its parties.
func (s *DisputeService) Get(ctx context.Context, id, userID uuid.UUID) (*domain.Dispute, error) {
	d, err := s.GetAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsParty(userID) {
		return nil, domain.ErrNotAParty
	}
	return d, nil
}

// GetAny returns a dispute without a party check, for the admin console.
func (s *DisputeService) GetAny(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return d, nil
}

func (s *DisputeService) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Dispute, error) {
	return s.disputes.ListByUser(ctx, userID)
}

func (s *DisputeService) List(ctx context.Context, limit int) ([]domain.Dispute, error) {
	return s.disputes.List(ctx, limit)
}

func (s *DisputeService) validateTruth(in *TruthInput) error {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" && len(in.Attachments) == 0 {
		return fmt.Errorf("%w: truth needs text or at least one attachment", domain.ErrInvalid)
	}
	if len(in.Attachments) > MaxAttachments {
		return fmt.Errorf("%w: at most %d attachments allowed", domain.ErrInvalid, MaxAttachments)
	}
	for i := range in.Attachments {
		a := &in.Attachments[i]
		if len(a.Data) == 0 {
			return fmt.Errorf("%w: attachment %q is empty", domain.ErrInvalid, a.FileName)
		}
		if s.opts.MaxAttachmentBytes > 0 && int64(len(a.Data)) > s.opts.MaxAttachmentBytes {
			return fmt.Errorf("%w: attachment %q exceeds %d bytes", domain.ErrInvalid, a.FileName, s.opts.MaxAttachmentBytes)
		}
		if a.Type == "" {
			a.Type = string(domain.AttachmentTypeDocument)
			if strings.HasPrefix(a.ContentType, "image/") {
				a.Type = string(domain.AttachmentTypeImage)
			}
		}
		if !domain.ValidAttachmentType(a.Type) {
			return fmt.Errorf("%w: attachment type must be image or document", domain.ErrInvalid)
		}
		if a.ContentType == "" {
			a.ContentType = "application/octet-stream"
		}
	}
	return nil
}

// SubmitTruth records userID's account of the dispute. The submission that
// completes the second party's truth starts resolution generation.
// Submissions by the same party that overlap share one outcome.
func (s *DisputeService) SubmitTruth(ctx context.Context, disputeID, userID uuid.UUID, in TruthInput) (*domain.Truth, error) {
	if err := s.validateTruth(&in); err != nil {
		return nil, err
	}

	key := disputeID.String() + "/" + userID.String()
	v, err, shared := s.submits.Do(key, func() (any, error) {
		return s.submitTruth(ctx, disputeID, userID, in)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("overlapping truth submission collapsed",
			zap.String("dispute_id", disputeID.String()),
			zap.String("user_id", userID.String()))
	}
	truth := *v.(*domain.Truth)
	return &truth, nil
}

func (s *DisputeService) submitTruth(ctx context.Context, disputeID, userID uuid.UUID, in TruthInput) (*domain.Truth, error) {
	snapshot, err := s.GetAny(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if err := snapshot.CanSubmitTruth(userID); err != nil {
		return nil, err
	}

	if err := s.billing.Authorize(ctx, userID, "submit_truth"); err != nil {
		return nil, err
	}

	truth := domain.Truth{
		ID:          uuid.New(),
		UserID:      userID,
		Text:        in.Text,
		Attachments: make([]domain.Attachment, 0, len(in.Attachments)),
		SubmittedAt: time.Now().UTC(),
	}
	for _, up := range in.Attachments {
		att := domain.Attachment{
			ID:          uuid.New(),
			FileName:    up.FileName,
			Type:        domain.AttachmentType(up.Type),
			ContentType: up.ContentType,
			Size:        int64(len(up.Data)),
		}
		att.Ref, err = s.blobs.Put(ctx, blob.AttachmentKey(disputeID, att.ID), up.ContentType, up.Data)
		if err != nil {
			s.discardAttachments(ctx, truth.Attachments)
			return nil, fmt.Errorf("store attachment: %w", err)
		}
		truth.Attachments = append(truth.Attachments, att)
	}

	var trigger bool
	d, err := s.disputes.Update(ctx, disputeID, func(d *domain.Dispute) error {
		var err error
		trigger, err = d.AddTruth(truth)
		return err
	})
	if err != nil {
		s.discardAttachments(ctx, truth.Attachments)
		return nil, translateStoreErr(err)
	}

	s.logger.Info("truth submitted",
		zap.String("dispute_id", disputeID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("attachments", len(truth.Attachments)),
		zap.Bool("triggers_resolution", trigger))
	s.events.Publish(ctx, domain.NewEvent(domain.EventTruthSubmitted, d, &userID))

	if trigger {
		s.startResolution(ctx, d)
	}
	return &truth, nil
}

// discardAttachments removes blobs of a truth that was not recorded.
func (s *DisputeService) discardAttachments(ctx context.Context, atts []domain.Attachment) {
	if len(atts) == 0 {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	for _, a := range atts {
		if err := s.blobs.Delete(dctx, a.Ref); err != nil {
			s.logger.Warn("failed to discard attachment", zap.String("ref", a.Ref), zap.Error(err))
		}
	}
}

// RetryResolution re-triggers generation after a failure.
func (s *DisputeService) RetryResolution(ctx context.Context, disputeID, userID uuid.UUID) (*domain.Dispute, error) {
	d, err := s.disputes.Update(ctx, disputeID, func(d *domain.Dispute) error {
		if !d.IsParty(userID) {
			return domain.ErrNotAParty
		}
		return d.RetryResolution(time.Now().UTC())
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	s.logger.Info("resolution retry requested",
		zap.String("dispute_id", disputeID.String()),
		zap.String("user_id", userID.String()))
	s.startResolution(ctx, d)
	return d, nil
}

func (s *DisputeService) startResolution(ctx context.Context, d *domain.Dispute) {
	s.events.Publish(ctx, domain.NewEvent(domain.EventResolutionPending, d, nil))
	s.runner.Submit(d.ID)
}

func (s *DisputeService) GetResolution(ctx context.Context, disputeID, userID uuid.UUID) (*domain.Resolution, error) {
	d, err := s.Get(ctx, disputeID, userID)
	if err != nil {
		return nil, err
	}
	if d.Resolution == nil {
		return nil, domain.ErrResolutionNotReady
	}
	return d.Resolution, nil
}

// GetAttachment returns an attachment's metadata and content to a party.
func (s *DisputeService) GetAttachment(ctx context.Context, disputeID, attachmentID, userID uuid.UUID) (*domain.Attachment, []byte, error) {
	d, err := s.Get(ctx, disputeID, userID)
	if err != nil {
		return nil, nil, err
	}
	att, ok := d.FindAttachment(attachmentID)
	if !ok {
		return nil, nil, domain.ErrAttachmentNotFound
	}
	data, _, err := s.blobs.Get(ctx, att.Ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, domain.ErrAttachmentNotFound
		}
		return nil, nil, err
	}
	return att, data, nil
}
