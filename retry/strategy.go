// Package retry provides a retry policy with exponential backoff, jitter and
// Retry-After support, plus a circuit breaker for resilient operations.
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/hedeqiang/tether/signal"
)

// Predicate decides whether a failed attempt should be retried. remaining is
// the number of attempts left in the budget after the one that just failed.
type Predicate func(err error, remaining int) bool

// Policy configures the retry loop run by Do and DoValue.
type Policy struct {
	// Attempts is the total attempt budget, including the first call.
	// Values below 1 are treated as 1.
	Attempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential delay.
	MaxDelay time.Duration

	// Factor is the backoff multiplier. Defaults to 2.
	Factor float64

	// Jitter is the relative jitter amplitude. Zero means DefaultJitter,
	// negative disables it.
	Jitter float64

	// ShouldRetry overrides DefaultShouldRetry.
	ShouldRetry Predicate

	// OnRetry, if set, is called before each backoff wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns a Policy with three attempts and a 500ms base delay
// capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Factor:    2,
	}
}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p Policy) shouldRetry(err error, remaining int) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err, remaining)
	}
	return DefaultShouldRetry(err, remaining)
}

// Delay returns the wait before retrying a failed 0-indexed attempt. If err
// carries a Retry-After hint the delay is never shorter than the hint.
func (p Policy) Delay(attempt int, err error) time.Duration {
	b := Backoff{
		BaseDelay: p.BaseDelay,
		MaxDelay:  p.MaxDelay,
		Factor:    p.Factor,
		Jitter:    p.Jitter,
	}
	d := b.Delay(attempt)

	var hint RetryAfterer
	if errors.As(err, &hint) {
		if after, ok := hint.RetryAfter(); ok && after > d {
			d = after
		}
	}
	return d
}

// Do calls fn until it succeeds, the policy refuses a retry, or the attempt
// budget is spent. fn receives the 0-indexed attempt number.
//
// The error of the last attempt is returned unchanged. User aborts are never
// retried. If ctx is done during a backoff wait, its cause is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	total := p.attempts()
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}

		remaining := total - attempt - 1
		if remaining <= 0 || signal.IsAborted(err) || !p.shouldRetry(err, remaining) {
			return v, err
		}

		delay := p.Delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, context.Cause(ctx)
		case <-timer.C:
		}
	}
}

// DefaultShouldRetry retries timeouts, HTTP 5xx responses and network
// failures. User aborts and other HTTP statuses, 429 included, are not
// retried.
func DefaultShouldRetry(err error, _ int) bool {
	if err == nil || signal.IsAborted(err) {
		return false
	}
	// rejected locally; the breaker decides when to try again
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if signal.IsTimeout(err) {
		return true
	}

	if code, ok := StatusCode(err); ok {
		return code >= 500
	}

	var nf interface{ NetworkFailure() bool }
	if errors.As(err, &nf) {
		return nf.NetworkFailure()
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// RetryOn returns a predicate that retries the given HTTP statuses in
// addition to whatever DefaultShouldRetry accepts.
func RetryOn(codes ...int) Predicate {
	return func(err error, remaining int) bool {
		if code, ok := StatusCode(err); ok {
			for _, c := range codes {
				if c == code {
					return true
				}
			}
		}
		return DefaultShouldRetry(err, remaining)
	}
}

// StatusCode extracts an HTTP status from err if any error in its chain
// implements HTTPStatusCode() int.
func StatusCode(err error) (int, bool) {
	var sc interface{ HTTPStatusCode() int }
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode(), true
	}
	return 0, false
}
