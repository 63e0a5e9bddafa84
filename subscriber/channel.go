package subscriber

import (
	"sync"

	"github.com/hedeqiang/tether/event"
)

// Channel delivers events through a Go channel.
type Channel struct {
	mu     sync.Mutex
	ch     chan event.Event
	closed bool
}

// NewChannel creates a channel-based subscriber with the given buffer size.
func NewChannel(bufSize int) *Channel {
	if bufSize <= 0 {
		bufSize = 128
	}
	return &Channel{ch: make(chan event.Event, bufSize)}
}

// Events returns the channel to read events from. It is closed by Close.
func (c *Channel) Events() <-chan event.Event {
	return c.ch
}

// Send delivers an event. Drops it if the buffer is full or the subscriber
// is closed.
func (c *Channel) Send(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- ev:
	default:
		// drop: subscriber is not keeping up
	}
}

// Close shuts down the subscriber and closes its channel.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
