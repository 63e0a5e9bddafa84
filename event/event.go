// Package event defines push events delivered over the node's WebSocket and
// the decoding of their two wire spellings.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is returned by Decode when neither spelling of a required
// field is present.
var ErrMissingField = errors.New("event: missing field")

// Event is an unsolicited message scoped to a context.
type Event struct {
	// ContextID identifies the context the event belongs to.
	ContextID string `json:"contextId"`

	// Type names the event.
	Type string `json:"type"`

	// Data is the raw event payload.
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals Data into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("event: decode %s data: %w", e.Type, err)
	}
	return nil
}

// field lists the accepted keys for one Event member, primary first.
type field struct {
	primary  string
	fallback string
}

var (
	contextField = field{"contextId", "context_id"}
	typeField    = field{"type", "event"}
	dataField    = field{"data", "payload"}
)

func (f field) lookup(obj map[string]json.RawMessage) (json.RawMessage, error) {
	if v, ok := obj[f.primary]; ok {
		return v, nil
	}
	if v, ok := obj[f.fallback]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s or %s", ErrMissingField, f.primary, f.fallback)
}

// Decode parses a push event in either the camelCase spelling
// {contextId, type, data} or the alternate {context_id, event, payload}.
// For each member the primary key wins when both are present.
func Decode(raw []byte) (Event, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Event{}, fmt.Errorf("event: %w", err)
	}
	if obj == nil {
		return Event{}, errors.New("event: not an object")
	}

	var (
		ev  Event
		err error
		v   json.RawMessage
	)
	if v, err = contextField.lookup(obj); err != nil {
		return Event{}, err
	}
	if ev.ContextID, err = asString(v); err != nil {
		return Event{}, fmt.Errorf("event: %s: %w", contextField.primary, err)
	}

	if v, err = typeField.lookup(obj); err != nil {
		return Event{}, err
	}
	if ev.Type, err = asString(v); err != nil {
		return Event{}, fmt.Errorf("event: %s: %w", typeField.primary, err)
	}

	if ev.Data, err = dataField.lookup(obj); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// asString accepts JSON strings and numbers; context IDs are numeric on some
// node versions.
func asString(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("want string, got %s", v)
	}
	return n.String(), nil
}
