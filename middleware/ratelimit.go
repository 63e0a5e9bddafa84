package middleware

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hedeqiang/tether/transport"
)

// RateLimit throttles outgoing requests with a token bucket. Requests wait for
// a token and give up when their context is done.
type RateLimit struct {
	limiter *rate.Limiter
}

// NewRateLimit allows on average one request per interval with the given burst.
func NewRateLimit(interval time.Duration, burst int) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wrap decorates next with rate limiting.
func (r *RateLimit) Wrap(next transport.Doer) transport.Doer {
	return transport.DoerFunc(func(req *http.Request) (*http.Response, error) {
		if err := r.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
		return next.Do(req)
	})
}
