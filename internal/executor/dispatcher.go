package executor

import (
	"context"
	"time"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

const (
	// maxDispatchAttempts bounds the number of times an Operation is invoked
	// before a Retry result is converted into a terminal Failure, per spec 5.
	maxDispatchAttempts = 12
	// baseRetryDelay is the first backoff delay; each subsequent attempt
	// doubles it, per spec 5's exponential-backoff timeout notes.
	baseRetryDelay = 31 * time.Millisecond
	// maxRetryDelay caps the exponential growth so a long-retrying operation
	// never sleeps unboundedly between attempts.
	maxRetryDelay = 8 * time.Second
)

// Operation is a unit of work dispatched with retry, taking the attempt
// index (0-based) so it can make attempt-aware decisions if it needs to.
type Operation func(ctx context.Context, attempt int) Result

// Dispatcher retries an Operation that reports Retry, backing off
// exponentially between attempts, until it succeeds, fails terminally, or
// exhausts its retry budget.
type Dispatcher struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewDispatcher constructs a Dispatcher using the default retry budget from
// spec 5 (12 attempts, 31ms base delay, doubling, capped).
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		maxAttempts: maxDispatchAttempts,
		baseDelay:   baseRetryDelay,
		maxDelay:    maxRetryDelay,
	}
}

// NewDispatcherWithConfig constructs a Dispatcher with a caller-chosen retry
// budget, for callers (and tests) that need a tighter or looser schedule
// than NewDispatcher's default.
func NewDispatcherWithConfig(maxAttempts int, baseDelay, maxDelay time.Duration) *Dispatcher {
	return &Dispatcher{maxAttempts: maxAttempts, baseDelay: baseDelay, maxDelay: maxDelay}
}

// Dispatch runs op, retrying on Status == Retry with exponential backoff. A
// Success or Failure result is returned immediately. If every attempt
// returns Retry, the final result is converted to Failure with code
// DispatcherExhaustedRetries. If ctx is cancelled while sleeping between
// attempts, Dispatch returns immediately with a Failure carrying the
// context's error kind.
func (d *Dispatcher) Dispatch(ctx context.Context, op Operation) Result {
	delay := d.baseDelay
	var last Result
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		last = op(ctx, attempt)
		if last.Status != Retry {
			return last
		}
		if attempt == d.maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return Fail(pbserrors.Internal)
		case <-time.After(delay):
		}
		delay *= 2
		if delay > d.maxDelay {
			delay = d.maxDelay
		}
	}
	return Fail(pbserrors.DispatcherExhaustedRetries)
}
