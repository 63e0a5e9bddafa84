package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultJitter is the fraction of the capped delay used as jitter amplitude.
const DefaultJitter = 0.2

// Backoff computes exponential delays with a cap and proportional jitter.
type Backoff struct {
	// BaseDelay is the delay before the first retry, before jitter.
	BaseDelay time.Duration

	// MaxDelay caps the exponential delay. Zero means no cap.
	MaxDelay time.Duration

	// Factor is the growth per attempt. Defaults to 2.
	Factor float64

	// Jitter is the relative amplitude of the random perturbation.
	// Zero means DefaultJitter; a negative value disables jitter.
	Jitter float64
}

// randFloat returns a value in [0, 1).
var randFloat = rand.Float64

// Exponential creates a Backoff with the given base and cap and the default
// factor and jitter.
func Exponential(base, max time.Duration) Backoff {
	return Backoff{BaseDelay: base, MaxDelay: max, Factor: 2}
}

// Raw returns min(MaxDelay, BaseDelay*Factor^attempt) for a 0-indexed attempt.
func (b Backoff) Raw(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := b.Factor
	if factor <= 0 {
		factor = 2
	}

	d := float64(b.BaseDelay) * math.Pow(factor, float64(attempt))
	if b.MaxDelay > 0 && d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}
	return clamp(d)
}

// clamp converts d to a Duration, saturating instead of overflowing.
// float64(math.MaxInt64) rounds up to 2^63, so the bound is inclusive.
func clamp(d float64) time.Duration {
	switch {
	case d >= float64(math.MaxInt64) || math.IsInf(d, 1):
		return time.Duration(math.MaxInt64)
	case d <= 0 || math.IsNaN(d):
		return 0
	}
	return time.Duration(d)
}

// Delay returns the jittered delay for a 0-indexed attempt, never negative.
func (b Backoff) Delay(attempt int) time.Duration {
	raw := b.Raw(attempt)

	jitter := b.Jitter
	if jitter == 0 {
		jitter = DefaultJitter
	}
	if jitter < 0 {
		return raw
	}

	// uniform in [-jitter, +jitter] of raw
	offset := (randFloat()*2 - 1) * jitter * float64(raw)
	return clamp(float64(raw) + offset)
}
