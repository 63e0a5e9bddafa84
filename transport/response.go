package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// ParseMode selects how a 2xx body is handled.
type ParseMode int

const (
	// ModeAuto infers the mode from the response Content-Type.
	ModeAuto ParseMode = iota
	// ModeJSON validates the body as JSON.
	ModeJSON
	// ModeText keeps the body as text.
	ModeText
	// ModeBytes keeps the body as raw bytes.
	ModeBytes
	// ModeResponse returns status and headers only; the body is not read.
	ModeResponse
)

func (m ParseMode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeJSON:
		return "json"
	case ModeText:
		return "text"
	case ModeBytes:
		return "bytes"
	case ModeResponse:
		return "response"
	default:
		return "unknown"
	}
}

// InferMode maps a Content-Type to a parse mode. Unknown or missing types
// are treated as JSON.
func InferMode(contentType string) ParseMode {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}

	switch {
	case mt == "application/json", strings.HasSuffix(mt, "+json"):
		return ModeJSON
	case strings.HasPrefix(mt, "text/"):
		return ModeText
	case mt == "application/octet-stream",
		strings.HasPrefix(mt, "image/"),
		strings.HasPrefix(mt, "video/"),
		strings.HasPrefix(mt, "audio/"):
		return ModeBytes
	default:
		return ModeJSON
	}
}

// Response is a successful reply.
type Response struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Mode       ParseMode

	// Body is nil in ModeResponse.
	Body []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return &ParseError{URL: r.URL, ContentType: r.Header.Get("Content-Type"), Err: ErrEmptyBody}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &ParseError{URL: r.URL, ContentType: r.Header.Get("Content-Type"), Err: err}
	}
	return nil
}

// Data returns the body in the shape of its parse mode: a decoded JSON value,
// a string, a byte slice, or nil for ModeResponse and empty JSON bodies.
func (r *Response) Data() (any, error) {
	switch r.Mode {
	case ModeText:
		return r.Text(), nil
	case ModeBytes:
		return r.Body, nil
	case ModeResponse:
		return nil, nil
	default:
		if len(bytes.TrimSpace(r.Body)) == 0 {
			return nil, nil
		}
		var v any
		if err := r.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Decode is a generic helper over Response.Decode that accepts a call's
// results directly:
//
//	user, err := transport.Decode[User](c.Get(ctx, "/me"))
func Decode[T any](resp *Response, err error) (T, error) {
	var v T
	if err != nil {
		return v, err
	}
	err = resp.Decode(&v)
	return v, err
}

// Envelope is the {data, error} body shape used by the node's SDK endpoints.
type Envelope[T any] struct {
	Data  T              `json:"data"`
	Error *EnvelopeError `json:"error"`
}

// EnvelopeError is the error member of an Envelope.
type EnvelopeError struct {
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *EnvelopeError) Error() string {
	if e.Code == "" {
		return "transport: " + e.Message
	}
	return fmt.Sprintf("transport: %s: %s", e.Code, e.Message)
}

// UnmarshalJSON accepts either an object or a bare message string, and a
// numeric or string code.
func (e *EnvelopeError) UnmarshalJSON(b []byte) error {
	var msg string
	if err := json.Unmarshal(b, &msg); err == nil {
		*e = EnvelopeError{Message: msg}
		return nil
	}

	var raw struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = EnvelopeError{Message: raw.Message, Details: raw.Details}
	if len(raw.Code) > 0 && string(raw.Code) != "null" {
		var s string
		if err := json.Unmarshal(raw.Code, &s); err == nil {
			e.Code = s
		} else {
			e.Code = string(raw.Code)
		}
	}
	return nil
}

// DecodeEnvelope decodes an Envelope body and returns its data, or its error
// when one is present.
func DecodeEnvelope[T any](resp *Response, err error) (T, error) {
	env, err := Decode[Envelope[T]](resp, err)
	if err != nil {
		var zero T
		return zero, err
	}
	if env.Error != nil {
		var zero T
		return zero, env.Error
	}
	return env.Data, nil
}
