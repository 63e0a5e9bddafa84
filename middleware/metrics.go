package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/hedeqiang/tether/transport"
)

// Metrics counts dispatched requests by outcome.
type Metrics struct {
	requests  atomic.Uint64
	failures  atomic.Uint64
	success   atomic.Uint64
	client    atomic.Uint64
	server    atomic.Uint64
	rateLimit atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
// Failures counts dispatch errors that produced no response.
type Snapshot struct {
	Requests  uint64
	Failures  uint64
	Status2xx uint64
	Status4xx uint64
	Status5xx uint64
	Status429 uint64
}

// NewMetrics creates a metrics collection middleware.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Wrap decorates next with metrics collection.
func (m *Metrics) Wrap(next transport.Doer) transport.Doer {
	return transport.DoerFunc(func(req *http.Request) (*http.Response, error) {
		m.requests.Add(1)
		resp, err := next.Do(req)
		if err != nil {
			m.failures.Add(1)
			return resp, err
		}

		switch code := resp.StatusCode; {
		case code >= 500:
			m.server.Add(1)
		case code >= 400:
			m.client.Add(1)
			if code == http.StatusTooManyRequests {
				m.rateLimit.Add(1)
			}
		case code >= 200 && code < 300:
			m.success.Add(1)
		}
		return resp, nil
	})
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Requests:  m.requests.Load(),
		Failures:  m.failures.Load(),
		Status2xx: m.success.Load(),
		Status4xx: m.client.Load(),
		Status5xx: m.server.Load(),
		Status429: m.rateLimit.Load(),
	}
}
