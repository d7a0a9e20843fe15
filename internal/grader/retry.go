package grader

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// retryClass says how a grading failure may be retried.
type retryClass int

const (
	retryNo      retryClass = iota
	retryOnce               // malformed verdicts get a single re-ask
	retryBackoff            // transient failures back off and try again
)

// classify sorts a provider error into its retry class. Context errors
// and truncation are final: a cancelled grade stays cancelled, and a
// truncated verdict means the token budget is wrong, so re-asking would
// truncate again.
func classify(err error) retryClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retryNo
	}

	var (
		trunc *ErrTruncated
		inv   *ErrInvalidVerdict
	)
	switch {
	case errors.As(err, &trunc):
		return retryNo
	case errors.As(err, &inv):
		return retryOnce
	default:
		// Rate limits, 5xx and network failures are transient.
		return retryBackoff
	}
}

// RetryProvider is a decorator that retries transient grading failures
// with exponential backoff and jitter, within an optional time budget.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	var deadline time.Time
	if r.config.Budget > 0 {
		deadline = time.Now().Add(r.config.Budget)
	}

	var lastErr error
	reasked := false
	for attempt := range r.config.MaxAttempts {
		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		switch classify(err) {
		case retryNo:
			return nil, err
		case retryOnce:
			if reasked {
				return nil, err
			}
			reasked = true
		}

		if attempt == r.config.MaxAttempts-1 {
			break
		}

		wait := r.backoff(attempt, err)
		if !deadline.IsZero() && time.Now().Add(wait).After(deadline) {
			// Out of budget: let the pipeline mark the question
			// ungraded instead of holding the whole submission.
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// backoff computes the wait before the next attempt. A rate limit that
// names its own RetryAfter is honored as-is.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	wait = min(wait, float64(r.config.MaxWait))

	// ±20% jitter.
	wait *= 1 + 0.2*(2*rand.Float64()-1)

	return time.Duration(max(wait, 0))
}
