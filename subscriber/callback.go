package subscriber

import (
	"sync/atomic"

	"github.com/hedeqiang/tether/event"
)

// CallbackFunc is the function signature for event callbacks.
type CallbackFunc func(event.Event)

// Callback delivers events by invoking a function on the sender's goroutine.
type Callback struct {
	fn     CallbackFunc
	closed atomic.Bool
}

// NewCallback creates a callback-based subscriber.
func NewCallback(fn CallbackFunc) *Callback {
	return &Callback{fn: fn}
}

// Send invokes the callback. No-op once closed.
func (c *Callback) Send(ev event.Event) {
	if c.closed.Load() {
		return
	}
	c.fn(ev)
}

// Close stops the subscriber.
func (c *Callback) Close() {
	c.closed.Store(true)
}
