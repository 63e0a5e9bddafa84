// Package transport implements the HTTP client used to talk to a tether node.
//
// A Client resolves paths against a base URL, merges default and per-call
// headers, injects bearer tokens, composes cancellation from the default
// context, the caller's context and a timeout, dispatches through an injected
// Doer and turns the outcome into a Response or a typed error. An optional
// retry.Policy wraps each call.
package transport

import "net/http"

// Doer dispatches a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req).
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}
