package grader

import (
	"context"
	"sync"
	"time"
)

// UsageTotals is a point-in-time summary of grading backend consumption.
type UsageTotals struct {
	Requests     int
	Failures     int
	InputTokens  int
	OutputTokens int
	TotalLatency time.Duration
}

// UsageTracker accumulates token and latency totals across grading calls.
// Safe for concurrent use.
type UsageTracker struct {
	mu     sync.Mutex
	totals UsageTotals
}

// Totals returns a snapshot of the accumulated usage.
func (t *UsageTracker) Totals() UsageTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

func (t *UsageTracker) record(resp *Response, latency time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totals.Requests++
	t.totals.TotalLatency += latency
	if err != nil {
		t.totals.Failures++
	}
	if resp != nil {
		t.totals.InputTokens += resp.Usage.InputTokens
		t.totals.OutputTokens += resp.Usage.OutputTokens
	}
}

// trackedProvider is a decorator that records usage for every request.
type trackedProvider struct {
	inner   Provider
	tracker *UsageTracker
}

// WithUsageTracking wraps a Provider so every call updates the tracker.
func WithUsageTracking(p Provider, tracker *UsageTracker) Provider {
	return &trackedProvider{inner: p, tracker: tracker}
}

func (t *trackedProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := t.inner.Complete(ctx, req)
	t.tracker.record(resp, time.Since(start), err)
	return resp, err
}

func (t *trackedProvider) ModelID() string {
	return t.inner.ModelID()
}
