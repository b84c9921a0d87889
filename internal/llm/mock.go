package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mediationai/mediator/internal/domain"
)

// ErrMockFailure is returned by MockClient for scripted failures.
var ErrMockFailure = errors.New("mock resolution failure")

// MockClient is a fixed-response resolution client for tests and demos.
// Set the fields before use; it is safe to call Resolve concurrently.
type MockClient struct {
	mu sync.Mutex

	Response *domain.ResolutionDraft
	Error    error
	// Delay simulates provider latency. Resolve honours ctx while waiting.
	Delay time.Duration
	// FailFirst makes the first N calls fail with ErrMockFailure.
	FailFirst int

	// Call tracking for assertions
	Calls []domain.ResolutionRequest
}

func defaultDraft() *domain.ResolutionDraft {
	return &domain.ResolutionDraft{
		Summary:   "Both parties submitted their account of the disagreement.",
		Decision:  "After reviewing both parties' submissions, the recommended resolution is: Compromise and split the difference.",
		Rationale: "Neither account outweighs the other, so an even split is the fairest outcome.",
	}
}

func NewMockClient() *MockClient {
	return &MockClient{Response: defaultDraft()}
}

func (c *MockClient) Resolve(ctx context.Context, r domain.ResolutionRequest) (*domain.ResolutionDraft, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, r)
	call := len(c.Calls)
	delay, resp, err, failFirst := c.Delay, c.Response, c.Error, c.FailFirst
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if call <= failFirst {
		return nil, ErrMockFailure
	}
	if err != nil {
		return nil, err
	}
	draft := *resp
	return &draft, nil
}

// CallCount returns how many times Resolve has been invoked.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls and resets responses to defaults.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = defaultDraft()
	c.Error = nil
	c.Delay = 0
	c.FailFirst = 0
	c.Calls = nil
}
