package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultResolutionTimeout = 30 * time.Second
	defaultSweepInterval     = 1 * time.Minute
	persistTimeout           = 10 * time.Second
)

// ErrRunnerStopped is the result of tasks submitted after Stop.
var ErrRunnerStopped = errors.New("resolution runner stopped")

// ResolutionTask is a handle on one background generation.
type ResolutionTask struct {
	DisputeID uuid.UUID

	done      chan struct{}
	cancel    context.CancelFunc
	cancelled atomic.Bool
	// rerun is set, under the runner's mutex, when a submit arrives while the
	// task is finishing. The task then hands off to a fresh one.
	rerun bool

	dispute *domain.Dispute
	err     error
}

// Done is closed when the task has finished.
func (t *ResolutionTask) Done() <-chan struct{} {
	return t.done
}

// Result returns the dispute as left by the task. Only valid after Done.
func (t *ResolutionTask) Result() (*domain.Dispute, error) {
	<-t.done
	return t.dispute, t.err
}

// Cancel aborts the task. The dispute is marked failed so a party can retry.
func (t *ResolutionTask) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// ResolutionRunner generates resolutions outside the request path. At most
// one task per dispute is in flight; a periodic sweep re-drives disputes
// left pending, e.g. after a restart.
type ResolutionRunner struct {
	disputes domain.DisputeStore
	client   domain.ResolutionClient
	events   domain.EventPublisher
	logger   *zap.Logger

	timeout       time.Duration
	maxAttempts   int
	sweepInterval time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	inflight map[uuid.UUID]*ResolutionTask
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewResolutionRunner(ds domain.DisputeStore, client domain.ResolutionClient, events domain.EventPublisher, logger *zap.Logger) *ResolutionRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &ResolutionRunner{
		disputes:      ds,
		client:        client,
		events:        events,
		logger:        logger,
		timeout:       defaultResolutionTimeout,
		maxAttempts:   2,
		sweepInterval: defaultSweepInterval,
		ctx:           ctx,
		cancel:        cancel,
		inflight:      make(map[uuid.UUID]*ResolutionTask),
		stopCh:        make(chan struct{}),
	}
}

// SetTimeout bounds each provider call.
func (r *ResolutionRunner) SetTimeout(d time.Duration) {
	r.timeout = d
}

// SetMaxAttempts sets the number of provider calls per task.
func (r *ResolutionRunner) SetMaxAttempts(n int) {
	if n < 1 {
		n = 1
	}
	r.maxAttempts = n
}

func (r *ResolutionRunner) SetSweepInterval(d time.Duration) {
	r.sweepInterval = d
}

// Submit starts generation for disputeID, or returns the task already in
// flight for it. A task found in flight runs again once it finishes, so a
// retry accepted while it winds down is still driven.
func (r *ResolutionRunner) Submit(disputeID uuid.UUID) *ResolutionTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.inflight[disputeID]; ok {
		t.rerun = true
		return t
	}

	ctx, cancel := context.WithCancel(r.ctx)
	t := &ResolutionTask{
		DisputeID: disputeID,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	if r.ctx.Err() != nil {
		cancel()
		t.err = ErrRunnerStopped
		close(t.done)
		return t
	}

	r.inflight[disputeID] = t
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		t.dispute, t.err = r.run(ctx, t)

		r.mu.Lock()
		delete(r.inflight, disputeID)
		rerun := t.rerun
		r.mu.Unlock()
		close(t.done)

		if rerun {
			r.Submit(disputeID)
		}
	}()
	return t
}

// InFlight reports the number of running tasks.
func (r *ResolutionRunner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Start runs the pending sweep once and then on a periodic schedule.
func (r *ResolutionRunner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		r.logger.Info("resolution sweep started", zap.Duration("interval", r.sweepInterval))
		r.sweep()

		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stopCh:
				r.logger.Info("resolution sweep stopped")
				return
			}
		}
	}()
}

// Stop cancels in-flight tasks and waits for them. Disputes whose
// generation was interrupted stay pending for the next sweep.
func (r *ResolutionRunner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.cancel()
	})
	r.wg.Wait()
}

func (r *ResolutionRunner) sweep() {
	ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
	defer cancel()

	ids, err := r.disputes.ListPendingResolution(ctx)
	if err != nil {
		r.logger.Error("failed to list pending resolutions", zap.Error(err))
		return
	}
	for _, id := range ids {
		r.Submit(id)
	}
	if len(ids) > 0 {
		r.logger.Info("re-submitted pending resolutions", zap.Int("count", len(ids)))
	}
}

func (r *ResolutionRunner) run(ctx context.Context, t *ResolutionTask) (*domain.Dispute, error) {
	log := r.logger.With(zap.String("dispute_id", t.DisputeID.String()))

	d, err := r.disputes.GetByID(ctx, t.DisputeID)
	if err != nil {
		log.Error("failed to load dispute for resolution", zap.Error(err))
		return nil, translateStoreErr(err)
	}
	if d.IsResolved() || d.ResolutionState != domain.ResolutionStatePending {
		log.Debug("resolution not pending, skipping", zap.String("state", string(d.ResolutionState)))
		return d, nil
	}

	draft, err := r.generate(ctx, buildResolutionRequest(d), log)
	if err != nil {
		if ctx.Err() != nil && !t.cancelled.Load() {
			log.Info("resolution interrupted by shutdown, left pending")
			return d, ctx.Err()
		}
		return r.fail(ctx, t.DisputeID, err, log)
	}

	res := &domain.Resolution{
		ID:        uuid.New(),
		Summary:   draft.Summary,
		Decision:  draft.Decision,
		Rationale: draft.Rationale,
		CreatedAt: time.Now().UTC(),
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	updated, err := r.disputes.Update(pctx, t.DisputeID, func(d *domain.Dispute) error {
		return d.ApplyResolution(res)
	})
	if errors.Is(err, domain.ErrAlreadyResolved) {
		log.Info("dispute already resolved, discarding duplicate resolution")
		return updated, nil
	}
	if err != nil {
		log.Error("failed to store resolution", zap.Error(err))
		return nil, translateStoreErr(err)
	}

	log.Info("dispute resolved", zap.String("resolution_id", res.ID.String()))
	r.events.Publish(pctx, domain.NewEvent(domain.EventDisputeResolved, updated, nil))
	return updated, nil
}

func (r *ResolutionRunner) generate(ctx context.Context, req domain.ResolutionRequest, log *zap.Logger) (*domain.ResolutionDraft, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		actx, cancel := context.WithTimeout(ctx, r.timeout)
		draft, err := r.client.Resolve(actx, req)
		cancel()
		if err == nil {
			return draft, nil
		}

		lastErr = err
		log.Warn("resolution attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.maxAttempts),
			zap.Error(err))
	}
	return nil, lastErr
}

func (r *ResolutionRunner) fail(ctx context.Context, id uuid.UUID, cause error, log *zap.Logger) (*domain.Dispute, error) {
	reason := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = "resolution provider timed out"
	} else if errors.Is(cause, context.Canceled) {
		reason = "resolution cancelled"
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	updated, err := r.disputes.Update(pctx, id, func(d *domain.Dispute) error {
		return d.FailResolution(reason, time.Now().UTC())
	})
	if errors.Is(err, domain.ErrAlreadyResolved) {
		return updated, nil
	}
	if err != nil {
		log.Error("failed to record resolution failure", zap.Error(err))
		return nil, translateStoreErr(err)
	}

	log.Warn("resolution failed", zap.String("reason", reason))
	e := domain.NewEvent(domain.EventResolutionFailed, updated, nil)
	e.Message = reason
	r.events.Publish(pctx, e)
	return updated, fmt.Errorf("generate resolution: %w", cause)
}

// buildResolutionRequest labels the creator's statement "Party A" and the
// joiner's "Party B".
func buildResolutionRequest(d *domain.Dispute) domain.ResolutionRequest {
	req := domain.ResolutionRequest{
		DisputeID:   d.ID,
		Title:       d.Title,
		Description: d.Description,
	}
	for _, t := range d.Truths {
		party := "Party B"
		if t.UserID == d.PartyAID {
			party = "Party A"
		}
		st := domain.PartyStatement{Party: party, Text: strings.TrimSpace(t.Text)}
		for _, a := range t.Attachments {
			st.Attachments = append(st.Attachments, fmt.Sprintf("%s (%s)", a.FileName, a.Type))
		}
		req.Statements = append(req.Statements, st)
	}
	return req
}
