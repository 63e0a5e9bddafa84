package tether

import (
	"log/slog"

	"github.com/hedeqiang/tether/auth"
	"github.com/hedeqiang/tether/middleware"
	"github.com/hedeqiang/tether/retry"
	"github.com/hedeqiang/tether/transport"
	"github.com/hedeqiang/tether/ws"
)

// Option configures a Client.
type Option func(*Client)

// WithStorage sets the token storage, overriding Config.TokenFile.
func WithStorage(s auth.Storage) Option {
	return func(c *Client) {
		c.storage = s
	}
}

// WithRefreshFunc sets the refresh token exchange. Without it expired tokens
// are sent as is and a token_expired 401 is returned to the caller.
func WithRefreshFunc(fn auth.RefreshFunc) Option {
	return func(c *Client) {
		c.refresh = fn
	}
}

// WithMiddleware adds middleware to the HTTP dispatch path, inside the
// built-in request ID, logging and metrics layers.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, mw...)
	}
}

// WithLogger sets the logger, overriding Config.LogLevel.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithDoer sets the innermost HTTP dispatcher. Defaults to an *http.Client
// with a public-suffix cookie jar.
func WithDoer(d transport.Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

// WithDialer sets the WebSocket implementation.
func WithDialer(d ws.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithRetryPolicy overrides the retry policy derived from Config.Retry.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.retry = &p
	}
}
