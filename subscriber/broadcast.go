package subscriber

import (
	"sync"

	"github.com/hedeqiang/tether/event"
)

// Broadcast distributes events to multiple subscribers in registration order.
type Broadcast struct {
	mu   sync.RWMutex
	subs []Subscriber
}

// NewBroadcast creates a new broadcast dispatcher.
func NewBroadcast() *Broadcast {
	return &Broadcast{}
}

// Add registers a subscriber and returns a func that removes it.
func (b *Broadcast) Add(sub Subscriber) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	return func() { b.Remove(sub) }
}

// Remove unregisters sub without closing it.
func (b *Broadcast) Remove(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Send delivers an event to all registered subscribers.
func (b *Broadcast) Send(ev event.Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.Send(ev)
	}
}

// Close shuts down all registered subscribers.
func (b *Broadcast) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// Len returns the number of registered subscribers.
func (b *Broadcast) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
