// Package subscriber provides event distribution patterns.
package subscriber

import (
	"github.com/hedeqiang/tether/event"
)

// Subscriber receives push events through a chosen delivery mechanism.
type Subscriber interface {
	// Send delivers an event to this subscriber. Non-blocking.
	Send(ev event.Event)

	// Close terminates the subscriber and releases resources.
	Close()
}
