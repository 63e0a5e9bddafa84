package middleware

import (
	"net/http"

	"github.com/hedeqiang/tether/retry"
	"github.com/hedeqiang/tether/transport"
)

// Breaker short-circuits requests while the node keeps failing. Dispatch
// errors and 5xx responses count as failures.
type Breaker struct {
	cb *retry.CircuitBreaker
}

// NewBreaker wraps cb as a middleware.
func NewBreaker(cb *retry.CircuitBreaker) *Breaker {
	return &Breaker{cb: cb}
}

// Wrap decorates next with the circuit breaker.
func (b *Breaker) Wrap(next transport.Doer) transport.Doer {
	return transport.DoerFunc(func(req *http.Request) (*http.Response, error) {
		if err := b.cb.Allow(); err != nil {
			return nil, err
		}
		resp, err := next.Do(req)
		if err != nil || resp.StatusCode >= 500 {
			b.cb.RecordFailure()
		} else {
			b.cb.RecordSuccess()
		}
		return resp, err
	})
}
