// Package signal composes cancellation sources into a single context.
//
// A call may be cancelled by the transport default context, the caller's own
// context, extra per-call sources and a derived timeout. Compose folds them
// into one context whose cause tells a timeout apart from a user abort.
package signal

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is the cancellation cause of contexts created by WithTimeout.
	ErrTimeout = errors.New("signal: timeout")

	// ErrAborted is the cancellation cause of contexts aborted by the caller.
	ErrAborted = errors.New("signal: aborted")
)

// Compose returns a context that is done as soon as any of ctxs is done.
// Nil entries are ignored. When no non-nil context is given, Compose returns a
// nil context and a no-op cancel func.
//
// The returned context carries the values and deadline of the first non-nil
// input, and its cause is the cause of whichever input fired first. Calling the
// returned cancel func releases every listener registered on the inputs.
func Compose(ctxs ...context.Context) (context.Context, context.CancelFunc) {
	live := make([]context.Context, 0, len(ctxs))
	for _, c := range ctxs {
		if c != nil {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return nil, func() {}
	}

	out, cancel := context.WithCancelCause(live[0])
	if len(live) == 1 {
		return out, func() { cancel(context.Canceled) }
	}

	var (
		mu    sync.Mutex
		stops []func() bool
	)
	release := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, stop := range stops {
			stop()
		}
		stops = nil
	}

	for _, c := range live[1:] {
		if c.Err() != nil {
			cancel(context.Cause(c))
			break
		}
		c := c
		stop := context.AfterFunc(c, func() {
			cancel(context.Cause(c))
		})
		mu.Lock()
		stops = append(stops, stop)
		mu.Unlock()
	}

	// Once out is done, by any input or by the caller, drop the remaining listeners.
	context.AfterFunc(out, release)

	return out, func() { cancel(context.Canceled) }
}

// WithTimeout returns a child of parent that is cancelled with ErrTimeout
// after d. A non-positive d yields a plain cancellable child.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeoutCause(parent, d, ErrTimeout)
}

// WithAbort returns a child of parent and a func that cancels it with
// ErrAborted. The abort func is safe to call more than once.
func WithAbort(parent context.Context) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return ctx, func() { cancel(ErrAborted) }
}

// Reason returns the cause of a done context, or nil if ctx is still live.
func Reason(ctx context.Context) error {
	if ctx == nil || ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}

// IsTimeout reports whether err was caused by an elapsed deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsAborted reports whether err was caused by an explicit cancellation.
// Timeouts are never reported as aborts.
func IsAborted(err error) bool {
	if err == nil || IsTimeout(err) {
		return false
	}
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}
