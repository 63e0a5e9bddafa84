// Package tether is a client SDK for a node's REST and WebSocket APIs.
//
// Usage:
//
//	cfg, _ := tether.LoadConfig("tether.yaml")
//	c, err := tether.New(cfg,
//	    tether.WithRefreshFunc(exchange),
//	)
//	if err != nil { ... }
//	defer c.Close(context.Background())
//
//	resp, err := c.HTTP().Get(ctx, "/admin-api/contexts")
//
//	c.Events().OnEvent(func(ev event.Event) {
//	    fmt.Println(ev.ContextID, ev.Type)
//	})
//	c.Events().Connect(ctx)
//	c.Events().Subscribe(ctx, "ctx-1")
package tether

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/hedeqiang/tether/auth"
	"github.com/hedeqiang/tether/internal/logging"
	"github.com/hedeqiang/tether/middleware"
	"github.com/hedeqiang/tether/retry"
	"github.com/hedeqiang/tether/transport"
	"github.com/hedeqiang/tether/ws"
)

// Client wires the HTTP transport, the WebSocket event client and token
// management around one node.
type Client struct {
	cfg         Config
	logger      *slog.Logger
	storage     auth.Storage
	refresh     auth.RefreshFunc
	middlewares []middleware.Middleware
	doer        transport.Doer
	dialer      ws.Dialer
	retry       *retry.Policy

	auth    *auth.Manager
	http    *transport.Client
	events  *ws.Client
	metrics *middleware.Metrics

	mu     sync.Mutex
	closed bool
}

// New builds a Client from cfg and opts.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		logger, err := newLogger(cfg)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}

	if c.storage == nil {
		c.storage = newStorage(cfg)
	}
	if !c.storage.IsAvailable() {
		c.logger.Warn("token storage unavailable", slog.String("path", cfg.TokenFile))
	}

	managerOpts := []auth.ManagerOption{auth.WithManagerLogger(c.logger)}
	if c.refresh != nil {
		managerOpts = append(managerOpts, auth.WithRefreshFunc(c.refresh))
	}
	c.auth = auth.NewManager(c.storage, managerOpts...)

	httpClient, err := c.newHTTP()
	if err != nil {
		return nil, err
	}
	c.http = httpClient

	c.events = ws.NewWithConfig(c.wsConfig())
	return c, nil
}

func newLogger(cfg Config) (*slog.Logger, error) {
	if cfg.LogLevel == "" {
		return logging.Discard(), nil
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return logger, nil
}

func newStorage(cfg Config) auth.Storage {
	if cfg.TokenFile == "" {
		return auth.NewMemory()
	}
	opts := []auth.FileOption{auth.WithProfile(cfg.Profile)}
	if cfg.Passphrase != "" {
		opts = append(opts, auth.WithPassphrase(cfg.Passphrase))
	}
	return auth.NewFile(cfg.TokenFile, opts...)
}

// newHTTP builds the transport with the middleware pipeline in front of the
// dispatcher.
func (c *Client) newHTTP() (*transport.Client, error) {
	mode, err := c.cfg.credentialsMode()
	if err != nil {
		return nil, err
	}

	doer := c.doer
	if doer == nil {
		doer = &http.Client{}
	}

	c.metrics = middleware.NewMetrics()
	mws := []middleware.Middleware{
		middleware.NewRequestID(),
		middleware.NewLogger(c.logger),
		c.metrics,
	}
	if b := c.cfg.Breaker; b.Threshold > 0 {
		mws = append(mws, middleware.NewBreaker(retry.NewCircuitBreaker(b.Threshold, b.ResetTimeout)))
	}
	if rl := c.cfg.RateLimit; rl.Interval > 0 {
		mws = append(mws, middleware.NewRateLimit(rl.Interval, rl.Burst))
	}
	mws = append(mws, c.middlewares...)

	headers := http.Header{"Accept": {"application/json"}}
	for k, v := range c.cfg.Headers {
		headers.Set(k, v)
	}

	policy := c.retry
	if policy == nil {
		policy = c.cfg.retryPolicy()
	}

	tcfg := transport.Config{
		BaseURL:     c.cfg.BaseURL,
		Headers:     headers,
		TokenGetter: c.token,
		Timeout:     c.cfg.Timeout,
		Credentials: mode,
		Doer:        middleware.Chain(doer, mws...),
		CookieJar:   transport.NewCookieJar(),
		Retry:       policy,
		Logger:      c.logger,
	}
	if c.refresh != nil {
		tcfg.TokenRefresher = c.auth.Refresh
	}
	return transport.NewWithConfig(tcfg), nil
}

func (c *Client) wsConfig() ws.Config {
	w := c.cfg.WebSocket
	cfg := ws.DefaultConfig()
	cfg.BaseURL = c.cfg.BaseURL
	cfg.TokenGetter = c.token
	cfg.AutoReconnect = w.AutoReconnect
	cfg.Logger = c.logger
	if w.Path != "" {
		cfg.Path = w.Path
	}
	if w.MaxReconnectAttempts > 0 {
		cfg.MaxReconnectAttempts = w.MaxReconnectAttempts
	}
	if w.ReconnectDelay > 0 {
		cfg.ReconnectDelay = w.ReconnectDelay
	}
	if w.RequestTimeout > 0 {
		cfg.RequestTimeout = w.RequestTimeout
	}
	if c.dialer != nil {
		cfg.Dialer = c.dialer
	}
	return cfg
}

// token is the getter shared by both transports. A missing token is not an
// error: the request goes out unauthenticated.
func (c *Client) token(ctx context.Context) (string, error) {
	tok, err := c.auth.Token(ctx)
	if errors.Is(err, auth.ErrNoToken) {
		return "", nil
	}
	return tok, err
}

// HTTP returns the HTTP transport.
func (c *Client) HTTP() *transport.Client {
	return c.http
}

// Events returns the WebSocket event client. It is not connected until
// Connect is called.
func (c *Client) Events() *ws.Client {
	return c.events
}

// Auth returns the token manager.
func (c *Client) Auth() *auth.Manager {
	return c.auth
}

// Metrics returns the HTTP request counters.
func (c *Client) Metrics() middleware.Snapshot {
	return c.metrics.Snapshot()
}

// Config returns the configuration the Client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// Close disconnects the event client and waits for its goroutines, giving up
// when ctx is done.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- c.events.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
