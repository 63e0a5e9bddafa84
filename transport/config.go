package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hedeqiang/tether/retry"
)

// TokenFunc returns a bearer token.
type TokenFunc func(ctx context.Context) (string, error)

// CredentialsMode controls whether cookies from the jar travel with a request.
type CredentialsMode int

const (
	// SameOrigin sends and stores cookies only for the base URL's origin.
	SameOrigin CredentialsMode = iota
	// Include sends and stores cookies for every URL.
	Include
	// Omit never sends or stores cookies.
	Omit
)

func (m CredentialsMode) String() string {
	switch m {
	case SameOrigin:
		return "same-origin"
	case Include:
		return "include"
	case Omit:
		return "omit"
	default:
		return "unknown"
	}
}

// Config holds the settings of a Client. It is copied at construction and
// never changed afterwards.
type Config struct {
	// BaseURL is the address relative paths are resolved against.
	// Trailing slashes are stripped.
	BaseURL string

	// Headers are sent with every request unless overridden per call.
	Headers http.Header

	// TokenGetter supplies the bearer token for requests without an
	// Authorization header.
	TokenGetter TokenFunc

	// TokenRefresher is called once when a request fails with 401 and
	// X-Auth-Error: token_expired.
	TokenRefresher TokenFunc

	// OnTokenRefreshed is called after TokenRefresher succeeds.
	OnTokenRefreshed func(token string)

	// Timeout applies to each attempt of a call that sets none. Zero disables it.
	Timeout time.Duration

	// Credentials is the default cookie policy.
	Credentials CredentialsMode

	// Context, if set, cancels every call when done.
	Context context.Context

	// Doer dispatches requests. Defaults to a plain *http.Client.
	Doer Doer

	// CookieJar stores cookies according to the credentials policy.
	CookieJar http.CookieJar

	// Retry wraps every call that does not override it. Nil disables retries.
	Retry *retry.Policy

	Logger *slog.Logger
}

// DefaultConfig returns a Config with JSON accept headers and a 30s timeout.
func DefaultConfig() Config {
	return Config{
		Headers:     http.Header{"Accept": {"application/json"}},
		Timeout:     30 * time.Second,
		Credentials: SameOrigin,
		Doer:        &http.Client{},
	}
}

// Option configures a Client.
type Option func(*Config)

// WithHeader adds a default header.
func WithHeader(key, value string) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(http.Header)
		}
		c.Headers.Set(key, value)
	}
}

// WithHeaders overlays default headers.
func WithHeaders(h http.Header) Option {
	return func(c *Config) {
		c.Headers = mergeHeaders(c.Headers, h)
	}
}

// WithTokenGetter sets the bearer token source.
func WithTokenGetter(fn TokenFunc) Option {
	return func(c *Config) {
		c.TokenGetter = fn
	}
}

// WithTokenRefresher sets the function used to recover from an expired token.
func WithTokenRefresher(fn TokenFunc) Option {
	return func(c *Config) {
		c.TokenRefresher = fn
	}
}

// WithOnTokenRefreshed registers a callback for refreshed tokens.
func WithOnTokenRefreshed(fn func(token string)) Option {
	return func(c *Config) {
		c.OnTokenRefreshed = fn
	}
}

// WithTimeout sets the default per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithCredentials sets the default cookie policy.
func WithCredentials(m CredentialsMode) Option {
	return func(c *Config) {
		c.Credentials = m
	}
}

// WithContext sets a context that cancels every call when done.
func WithContext(ctx context.Context) Option {
	return func(c *Config) {
		c.Context = ctx
	}
}

// WithDoer sets the request dispatcher.
func WithDoer(d Doer) Option {
	return func(c *Config) {
		if d != nil {
			c.Doer = d
		}
	}
}

// WithCookieJar sets the cookie jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Config) {
		c.CookieJar = jar
	}
}

// WithRetry sets the default retry policy.
func WithRetry(p retry.Policy) Option {
	return func(c *Config) {
		c.Retry = &p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
