package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy decides how often a failing listener is called again.
// Only transient failures are retried; a veto ends delivery at once.
type RetryPolicy struct {
	// MaxAttempts counts the first call. Values below 1 mean one call.
	MaxAttempts int

	// Backoff is the wait before the second call. It doubles for each
	// further call up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64
}

// DefaultRetry suits in-process listeners, so waits are in milliseconds.
var DefaultRetry = RetryPolicy{
	MaxAttempts: 3,
	Backoff:     10 * time.Millisecond,
	MaxBackoff:  500 * time.Millisecond,
	Jitter:      0.1,
}

// NoRetry calls a listener once.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// WithAttempts returns a copy of p that makes n calls at most.
func (p RetryPolicy) WithAttempts(n int) RetryPolicy {
	p.MaxAttempts = n
	return p
}

// Delay returns the wait after the given failed attempt, counting from 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt && (p.MaxBackoff <= 0 || d < p.MaxBackoff); i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
	}
	return d
}

// Retry calls fn under policy p and returns its value with the number of
// calls made. A failure is returned as a *CategorizedError whose Retries
// field holds that count, so callers can still tell a veto from a fault.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return zero, n - 1, &CategorizedError{Err: err, Category: CategoryPermanent, Retries: n - 1, Context: "delivery cancelled"}
		}

		value, err := fn(ctx)
		if err == nil {
			return value, n, nil
		}

		category := Categorize(err)
		if category != CategoryTransient {
			if ce, ok := err.(*CategorizedError); ok {
				out := *ce
				out.Retries = n
				return zero, n, &out
			}
			return zero, n, &CategorizedError{Err: err, Category: category, Retries: n}
		}
		if n == attempts {
			return zero, n, &CategorizedError{Err: err, Category: category, Retries: n, Context: "attempts exhausted"}
		}

		select {
		case <-ctx.Done():
			return zero, n, &CategorizedError{Err: ctx.Err(), Category: CategoryPermanent, Retries: n, Context: "delivery cancelled during backoff"}
		case <-time.After(p.Delay(n)):
		}
	}
}
