package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hedeqiang/tether/signal"
)

var (
	// ErrNotConnected is returned when sending while no socket is open.
	// Messages are never queued.
	ErrNotConnected = errors.New("ws: not connected")

	// ErrConnectionClosed rejects requests pending when the socket closes.
	ErrConnectionClosed = errors.New("ws: connection closed")

	// ErrReconnectExhausted is reported to error handlers when auto-reconnect
	// gives up.
	ErrReconnectExhausted = errors.New("ws: reconnect attempts exhausted")

	// ErrRequestTimeout is returned when a request gets no response in time.
	// It matches signal.ErrTimeout.
	ErrRequestTimeout = fmt.Errorf("ws: request timed out: %w", signal.ErrTimeout)

	// ErrUnsupportedScheme is returned for base URLs that are not http(s) or ws(s).
	ErrUnsupportedScheme = errors.New("ws: unsupported URL scheme")
)

// ResponseError is the error member of a response.
type ResponseError struct {
	Method  string
	ID      uint64
	Code    string
	Message string
	Raw     json.RawMessage
}

func (e *ResponseError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("ws: %s #%d: %s", e.Method, e.ID, e.Message)
	}
	return fmt.Sprintf("ws: %s #%d: %s: %s", e.Method, e.ID, e.Code, e.Message)
}

// parseResponseError accepts a bare string or an object with code and
// message; anything else is kept raw.
func parseResponseError(method string, id uint64, raw json.RawMessage) *ResponseError {
	e := &ResponseError{Method: method, ID: id, Raw: raw}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		e.Message = msg
		return e
	}

	var obj struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		e.Message = string(raw)
		return e
	}
	e.Message = obj.Message
	if len(obj.Code) > 0 && string(obj.Code) != "null" {
		var code string
		if err := json.Unmarshal(obj.Code, &code); err == nil {
			e.Code = code
		} else {
			e.Code = string(obj.Code)
		}
	}
	if e.Message == "" {
		e.Message = string(raw)
	}
	return e
}
