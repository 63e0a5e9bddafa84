package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/tether/signal"
)

type statusErr struct {
	code  int
	after time.Duration
}

func (e *statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatusCode() int { return e.code }
func (e *statusErr) RetryAfter() (time.Duration, bool) {
	return e.after, e.after > 0
}

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_AlwaysRetryExhaustsBudget(t *testing.T) {
	p := fastPolicy(3)
	p.ShouldRetry = func(error, int) bool { return true }

	want := errors.New("permanent")
	var calls []int
	err := Do(context.Background(), p, func(_ context.Context, attempt int) error {
		calls = append(calls, attempt)
		return fmt.Errorf("attempt %d: %w", attempt, want)
	})

	require.Error(t, err)
	assert.Equal(t, []int{0, 1, 2}, calls)
	assert.Equal(t, "attempt 2: permanent", err.Error())
}

func TestDo_ReturnsLastErrorVerbatim(t *testing.T) {
	last := &statusErr{code: 503}
	n := 0
	err := Do(context.Background(), fastPolicy(2), func(context.Context, int) error {
		n++
		if n == 2 {
			return last
		}
		return &statusErr{code: 500}
	})
	assert.Same(t, last, err)
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	n := 0
	v, err := DoValue(context.Background(), fastPolicy(5), func(context.Context, int) (string, error) {
		n++
		if n < 3 {
			return "", &statusErr{code: 502}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, n)
}

func TestDo_NeverRetriesAbort(t *testing.T) {
	p := fastPolicy(5)
	p.ShouldRetry = func(error, int) bool { return true }

	n := 0
	err := Do(context.Background(), p, func(context.Context, int) error {
		n++
		return fmt.Errorf("dispatch: %w", signal.ErrAborted)
	})
	assert.ErrorIs(t, err, signal.ErrAborted)
	assert.Equal(t, 1, n)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	n := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context, int) error {
		n++
		return &statusErr{code: http.StatusNotFound}
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestDo_RemainingPassedToPredicate(t *testing.T) {
	p := fastPolicy(3)
	var seen []int
	p.ShouldRetry = func(_ error, remaining int) bool {
		seen = append(seen, remaining)
		return true
	}
	_ = Do(context.Background(), p, func(context.Context, int) error { return errors.New("x") })
	assert.Equal(t, []int{2, 1}, seen)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, abort := signal.WithAbort(context.Background())
	p := Policy{Attempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
	p.OnRetry = func(int, error, time.Duration) { abort() }

	err := Do(ctx, p, func(context.Context, int) error { return &statusErr{code: 500} })
	assert.ErrorIs(t, err, signal.ErrAborted)
}

func TestDelay_Formula(t *testing.T) {
	old := randFloat
	defer func() { randFloat = old }()

	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Factor: 2}

	randFloat = func() float64 { return 0.5 }
	assert.Equal(t, 100*time.Millisecond, p.Delay(0, nil))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2, nil))
	assert.Equal(t, time.Second, p.Delay(10, nil))

	randFloat = func() float64 { return 0 }
	assert.Equal(t, 800*time.Millisecond, p.Delay(10, nil))

	randFloat = func() float64 { return 0.999999 }
	assert.InDelta(t, float64(1200*time.Millisecond), float64(p.Delay(10, nil)), float64(time.Millisecond))
}

func TestDelay_LargeAttemptsSaturate(t *testing.T) {
	old := randFloat
	defer func() { randFloat = old }()

	b := Backoff{BaseDelay: time.Second, Factor: 2}
	tests := []struct {
		attempt int
		rand    float64
	}{
		{62, 0.5},
		{63, 0.5},
		{64, 0.999999},
		{200, 0},
		{200, 0.999999},
		{100000, 0.5},
	}
	for _, tt := range tests {
		randFloat = func() float64 { return tt.rand }
		assert.Positive(t, b.Raw(tt.attempt), "Raw(%d)", tt.attempt)
		assert.Positive(t, b.Delay(tt.attempt), "Delay(%d) rand=%v", tt.attempt, tt.rand)
	}
	assert.Equal(t, time.Duration(math.MaxInt64), b.Raw(63))
	assert.Equal(t, time.Duration(math.MaxInt64), b.Raw(200))

	randFloat = func() float64 { return 0.999999 }
	assert.Equal(t, time.Duration(math.MaxInt64), b.Delay(200))
}

func TestDelay_JitterBounds(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Second}
	for i := 0; i < 200; i++ {
		d := p.Delay(3, nil)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestDelay_RetryAfterIsMinimum(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	err := fmt.Errorf("wrapped: %w", &statusErr{code: 503, after: 2 * time.Second})
	for attempt := 0; attempt < 5; attempt++ {
		assert.GreaterOrEqual(t, p.Delay(attempt, err), 2*time.Second)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", fmt.Errorf("get: %w", signal.ErrTimeout), true},
		{"deadline", context.DeadlineExceeded, true},
		{"abort", signal.ErrAborted, false},
		{"canceled", context.Canceled, false},
		{"5xx", &statusErr{code: 500}, true},
		{"503", &statusErr{code: 503}, true},
		{"429", &statusErr{code: 429}, false},
		{"404", &statusErr{code: 404}, false},
		{"net", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"plain", errors.New("boom"), false},
		{"circuit open", &netFailure{err: ErrCircuitOpen}, false},
		{"network failure", &netFailure{err: errors.New("reset")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultShouldRetry(tt.err, 1))
		})
	}
}

// netFailure mimics transport.NetworkError.
type netFailure struct{ err error }

func (e *netFailure) Error() string        { return "dispatch: " + e.err.Error() }
func (e *netFailure) Unwrap() error        { return e.err }
func (e *netFailure) NetworkFailure() bool { return true }

func TestRetryOn_OptIn429(t *testing.T) {
	pred := RetryOn(http.StatusTooManyRequests)
	assert.True(t, pred(&statusErr{code: 429}, 1))
	assert.True(t, pred(&statusErr{code: 500}, 1))
	assert.False(t, pred(&statusErr{code: 400}, 1))
	assert.False(t, pred(&netFailure{err: ErrCircuitOpen}, 1))
}

func TestDo_CircuitOpenNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, BaseDelay: time.Millisecond}, func(context.Context, int) error {
		calls++
		return &netFailure{err: ErrCircuitOpen}
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	d, ok := ParseRetryAfter("2", now)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	d, ok = ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, d)

	d, ok = ParseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now)
	require.True(t, ok)
	assert.Zero(t, d)

	d, ok = ParseRetryAfter("99999999999", now)
	require.True(t, ok)
	assert.Positive(t, d)
	assert.Equal(t, time.Duration(math.MaxInt64/time.Second)*time.Second, d)

	_, ok = ParseRetryAfter("soon", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfter("-1", now)
	assert.False(t, ok)
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, Open, cb.CurrentState())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, HalfOpen, cb.CurrentState())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen, "only one trial request while half-open")

	cb.RecordSuccess()
	assert.Equal(t, Closed, cb.CurrentState())
	assert.Equal(t, "closed", cb.CurrentState().String())
}
