package subscriber

import (
	"slices"

	"github.com/hedeqiang/tether/event"
)

// Match reports whether an event should be delivered.
type Match func(event.Event) bool

// ContextIn matches events of the given contexts.
func ContextIn(ids ...string) Match {
	return func(ev event.Event) bool {
		return slices.Contains(ids, ev.ContextID)
	}
}

// TypeIn matches events of the given types.
func TypeIn(types ...string) Match {
	return func(ev event.Event) bool {
		return slices.Contains(types, ev.Type)
	}
}

// All matches when every m matches. It matches everything when empty.
func All(ms ...Match) Match {
	return func(ev event.Event) bool {
		for _, m := range ms {
			if !m(ev) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one m matches.
func Any(ms ...Match) Match {
	return func(ev event.Event) bool {
		for _, m := range ms {
			if m(ev) {
				return true
			}
		}
		return false
	}
}

// Filter forwards only matching events to the wrapped subscriber.
type Filter struct {
	next  Subscriber
	match Match
}

// NewFilter wraps next so it only sees events accepted by match.
func NewFilter(next Subscriber, match Match) *Filter {
	return &Filter{next: next, match: match}
}

// Send forwards ev when it matches.
func (f *Filter) Send(ev event.Event) {
	if f.match(ev) {
		f.next.Send(ev)
	}
}

// Close closes the wrapped subscriber.
func (f *Filter) Close() {
	f.next.Close()
}
