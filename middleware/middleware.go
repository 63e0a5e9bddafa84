// Package middleware provides decorators for the HTTP dispatch path of a
// transport.Client.
package middleware

import (
	"github.com/hedeqiang/tether/transport"
)

// Middleware wraps a transport.Doer, adding cross-cutting behavior (logging,
// metrics, rate limiting, etc.).
type Middleware interface {
	// Wrap returns a new Doer that decorates next.
	Wrap(next transport.Doer) transport.Doer
}

// Func adapts a function to Middleware.
type Func func(next transport.Doer) transport.Doer

// Wrap calls f(next).
func (f Func) Wrap(next transport.Doer) transport.Doer {
	return f(next)
}

// Chain composes middlewares around d, applying them in the order provided
// (first middleware is outermost).
func Chain(d transport.Doer, mws ...Middleware) transport.Doer {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i].Wrap(d)
	}
	return d
}
