package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hedeqiang/tether/transport"
)

// HeaderRequestID carries the per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// RequestID tags each request with a random ID unless one is already set.
// Retries of the same call get distinct IDs.
type RequestID struct{}

// NewRequestID creates a request ID middleware.
func NewRequestID() RequestID {
	return RequestID{}
}

// Wrap decorates next with request ID tagging.
func (RequestID) Wrap(next transport.Doer) transport.Doer {
	return transport.DoerFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get(HeaderRequestID) == "" {
			req.Header.Set(HeaderRequestID, uuid.NewString())
		}
		return next.Do(req)
	})
}
