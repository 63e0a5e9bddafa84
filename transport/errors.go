package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hedeqiang/tether/retry"
)

// MaxErrorBody is the maximum number of body bytes kept on an HTTPError.
const MaxErrorBody = 64 << 10

// HeaderAuthError is the response header that qualifies a 401.
const HeaderAuthError = "X-Auth-Error"

// AuthErrorCode is the value of the X-Auth-Error response header.
type AuthErrorCode string

const (
	AuthMissingToken AuthErrorCode = "missing_token"
	AuthTokenExpired AuthErrorCode = "token_expired"
	AuthTokenRevoked AuthErrorCode = "token_revoked"
	AuthInvalidToken AuthErrorCode = "invalid_token"
)

var (
	// ErrRelativeURL is returned for a relative path when no base URL is configured.
	ErrRelativeURL = errors.New("transport: relative path without base URL")

	// ErrEmptyBody is returned when decoding an empty response body.
	ErrEmptyBody = errors.New("transport: empty response body")

	// ErrEmptyToken is returned when a token refresher yields an empty token.
	ErrEmptyToken = errors.New("transport: refresher returned empty token")

	errInvalidJSON = errors.New("invalid JSON body")
)

// HTTPError is returned for responses with a non-2xx status.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Header     http.Header

	// Body holds at most MaxErrorBody bytes of the response body.
	Body string

	// BodyErr is set when the body could not be read; Body is then empty.
	BodyErr error
}

func (e *HTTPError) Error() string {
	status := e.Status
	if status == "" {
		status = strconv.Itoa(e.StatusCode)
	}
	return fmt.Sprintf("transport: %s %s: %s", e.Method, e.URL, status)
}

// HTTPStatusCode returns the response status.
func (e *HTTPError) HTTPStatusCode() int {
	return e.StatusCode
}

// RetryAfter returns the delay requested by the Retry-After header.
func (e *HTTPError) RetryAfter() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	return retry.ParseRetryAfter(e.Header.Get("Retry-After"), time.Now())
}

// AuthError returns the X-Auth-Error code, if any.
func (e *HTTPError) AuthError() AuthErrorCode {
	if e.Header == nil {
		return ""
	}
	return AuthErrorCode(e.Header.Get(HeaderAuthError))
}

// ParseError is returned when a 2xx body does not match its parse mode.
type ParseError struct {
	URL         string
	ContentType string
	Err         error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("transport: parse %s (%s): %v", e.URL, e.ContentType, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NetworkError is returned when dispatch fails before a response arrives.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NetworkFailure marks the error as a transport-level failure for retry
// classification.
func (e *NetworkError) NetworkFailure() bool {
	return true
}

// cancelError reports a call stopped by its composed context. Its cause is
// signal.ErrTimeout, signal.ErrAborted or a context error.
type cancelError struct {
	method string
	url    string
	cause  error
}

func (e *cancelError) Error() string {
	return "transport: " + e.method + " " + e.url + ": " + e.cause.Error()
}

func (e *cancelError) Unwrap() error {
	return e.cause
}

func validJSON(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || json.Valid(b)
}
