// Package ws implements the node's WebSocket event client.
//
// A Client keeps one socket open, correlates requests and responses by
// numeric ID, fans out push events, and remembers subscribed contexts so it
// can subscribe again after an automatic reconnect.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedeqiang/tether/event"
	"github.com/hedeqiang/tether/internal/syncutil"
	"github.com/hedeqiang/tether/signal"
	"github.com/hedeqiang/tether/subscriber"
)

// Methods used for subscription bookkeeping.
const (
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
)

type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type envelope struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func (e envelope) isResponse() bool {
	return e.ID != nil && (e.Result != nil || e.Error != nil)
}

type contextParams struct {
	ContextIDs []string `json:"contextIds"`
}

type reply struct {
	result json.RawMessage
	rpcErr json.RawMessage
	err    error
}

type pendingCall struct {
	method string
	ch     chan reply
}

// Client is a WebSocket event client. It is safe for concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger
	nextID atomic.Uint64
	events *subscriber.Broadcast

	// connMu serializes dialing.
	connMu sync.Mutex

	mu            sync.Mutex
	state         State
	conn          Conn
	group         *syncutil.Group
	autoReconnect bool
	attempts      int
	pending       map[uint64]pendingCall
	subscribed    []string
	onError       []func(error)
	onState       []func(State)
}

// New creates a disconnected Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a disconnected Client from a complete Config.
func NewWithConfig(cfg Config) *Client {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.TokenParam == "" {
		cfg.TokenParam = "token"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = GorillaDialer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "ws")),
		events:  subscriber.NewBroadcast(),
		pending: make(map[uint64]pendingCall),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnEvent registers fn for push events and returns a func that removes it.
// fn runs on the read goroutine and must not block.
func (c *Client) OnEvent(fn func(event.Event)) (remove func()) {
	return c.events.Add(subscriber.NewCallback(fn))
}

// Events returns a buffered channel of push events. Events are dropped when
// the buffer is full. The channel is closed by Close.
func (c *Client) Events(buf int) *subscriber.Channel {
	ch := subscriber.NewChannel(buf)
	c.events.Add(ch)
	return ch
}

// AddSubscriber registers sub for push events and returns a func that
// removes it. sub is closed by Close.
func (c *Client) AddSubscriber(sub subscriber.Subscriber) (remove func()) {
	return c.events.Add(sub)
}

// OnError registers fn for asynchronous errors: undecodable messages and
// reconnect exhaustion.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

// OnStateChange registers fn for state transitions.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

// Connect opens the socket. It is a no-op when already connected. A token
// getter failure is logged and the socket is opened without a token.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()

	c.mu.Lock()
	if c.state == Connected {
		c.mu.Unlock()
		c.connMu.Unlock()
		return nil
	}
	if c.group == nil {
		c.group = syncutil.NewGroup(context.Background())
	}
	group := c.group
	c.autoReconnect = c.cfg.AutoReconnect
	c.attempts = 0
	c.mu.Unlock()

	notify, err := c.dial(ctx, group)
	c.connMu.Unlock()
	notify()
	if err != nil {
		c.setState(group, Disconnected)
	}
	return err
}

// dial opens a socket for group and starts its read loop. The caller holds
// connMu and must call the returned notify after releasing it, whatever the
// error.
func (c *Client) dial(ctx context.Context, group *syncutil.Group) (notify func(), err error) {
	var notes []func()
	notify = func() {
		for _, fn := range notes {
			fn()
		}
	}

	c.mu.Lock()
	if c.group != group {
		c.mu.Unlock()
		return notify, ErrConnectionClosed
	}
	notes = append(notes, c.setStateLocked(Connecting))
	c.mu.Unlock()

	target, err := c.socketURL(ctx)
	if err != nil {
		return notify, err
	}

	dctx, cancel := signal.Compose(ctx, group.Context())
	defer cancel()

	conn, err := c.cfg.Dialer.Dial(dctx, target.String())
	if err != nil {
		return notify, fmt.Errorf("ws: dial %s: %w", target.Redacted(), err)
	}

	c.mu.Lock()
	if c.group != group {
		// disconnected while dialing
		c.mu.Unlock()
		conn.Close()
		return notify, ErrConnectionClosed
	}
	c.conn = conn
	// the read loop must be running before Connected handlers can send
	group.Go(func(ctx context.Context) {
		c.readLoop(ctx, conn)
	})
	notes = append(notes, c.setStateLocked(Connected))
	c.mu.Unlock()

	c.logger.Debug("connected", slog.String("host", target.Host))
	return notify, nil
}

// socketURL maps the base URL to a ws(s) URL, appends the path and adds the
// token parameter.
func (c *Client) socketURL(ctx context.Context) (*url.URL, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("ws: parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(c.cfg.Path, "/")
	u.RawPath = ""

	if c.cfg.TokenGetter != nil {
		token, err := c.cfg.TokenGetter(ctx)
		switch {
		case err != nil:
			c.logger.Warn("token getter failed, connecting without token", slog.Any("error", err))
		case token != "":
			q := u.Query()
			q.Set(c.cfg.TokenParam, token)
			u.RawQuery = q.Encode()
		}
	}
	return u, nil
}

// Disconnect closes the socket, stops auto-reconnect, rejects pending
// requests and forgets subscribed contexts. Background goroutines exit
// asynchronously; Close waits for them.
func (c *Client) Disconnect() error {
	group, err := c.disconnect()
	if group != nil {
		group.Cancel()
	}
	return err
}

// Close disconnects, waits for background goroutines and closes every
// event subscriber. It must not be called from an event, error or state
// handler.
func (c *Client) Close() error {
	group, err := c.disconnect()
	if group != nil {
		group.Stop()
	}
	c.events.Close()
	return err
}

func (c *Client) disconnect() (*syncutil.Group, error) {
	c.mu.Lock()
	c.autoReconnect = false
	conn := c.conn
	c.conn = nil
	group := c.group
	c.group = nil
	c.subscribed = nil
	c.attempts = 0
	c.failPendingLocked(ErrConnectionClosed)
	notify := c.setStateLocked(Disconnected)
	c.mu.Unlock()
	notify()

	if conn == nil {
		return group, nil
	}
	return group, conn.Close()
}

// Request sends method with params and waits for the matching response. It
// fails with ErrNotConnected when no socket is open and with an error
// matching ErrRequestTimeout when no response arrives within RequestTimeout.
// A response carrying an error member yields *ResponseError.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if params == nil {
		params = struct{}{}
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.state != Connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := c.nextID.Add(1)
	ch := make(chan reply, 1)
	c.pending[id] = pendingCall{method: method, ch: ch}
	c.mu.Unlock()

	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("ws: marshal %s: %w", method, err)
	}
	if err := conn.WriteMessage(ctx, data); err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("ws: write %s: %w", method, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if len(r.rpcErr) > 0 && string(r.rpcErr) != "null" {
			return nil, parseResponseError(method, id, r.rpcErr)
		}
		return r.result, nil
	case <-timer.C:
		c.dropPending(id)
		return nil, fmt.Errorf("%w: %s #%d", ErrRequestTimeout, method, id)
	case <-ctx.Done():
		c.dropPending(id)
		return nil, context.Cause(ctx)
	}
}

// Subscribe subscribes to the given contexts. The subscribed set changes only
// when the node acknowledges without an error.
func (c *Client) Subscribe(ctx context.Context, contextIDs ...string) error {
	if len(contextIDs) == 0 {
		return nil
	}
	if _, err := c.Request(ctx, MethodSubscribe, contextParams{ContextIDs: contextIDs}); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range contextIDs {
		if !slices.Contains(c.subscribed, id) {
			c.subscribed = append(c.subscribed, id)
		}
	}
	return nil
}

// Unsubscribe unsubscribes from the given contexts. The subscribed set changes
// only when the node acknowledges without an error.
func (c *Client) Unsubscribe(ctx context.Context, contextIDs ...string) error {
	if len(contextIDs) == 0 {
		return nil
	}
	if _, err := c.Request(ctx, MethodUnsubscribe, contextParams{ContextIDs: contextIDs}); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = slices.DeleteFunc(c.subscribed, func(id string) bool {
		return slices.Contains(contextIDs, id)
	})
	return nil
}

// SubscribedContexts returns the subscribed contexts in subscription order.
func (c *Client) SubscribedContexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.subscribed)
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.ReadMessage(ctx)
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.route(data)
	}
}

// route settles a pending request or fans out a push event.
func (c *Client) route(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.emitError(fmt.Errorf("ws: malformed message: %w", err))
		return
	}

	if env.ID != nil {
		c.mu.Lock()
		call, ok := c.pending[*env.ID]
		delete(c.pending, *env.ID)
		c.mu.Unlock()

		if ok {
			call.ch <- reply{result: env.Result, rpcErr: env.Error}
			return
		}
		if env.isResponse() {
			c.logger.Debug("dropping response without pending request", slog.Uint64("id", *env.ID))
			return
		}
	}
	ev, err := event.Decode(data)
	if err != nil {
		c.emitError(fmt.Errorf("ws: undecodable event: %w", err))
		return
	}
	c.events.Send(ev)
}

// handleClose reacts to a read failure on conn.
func (c *Client) handleClose(conn Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// closed by Disconnect or already replaced
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.failPendingLocked(ErrConnectionClosed)
	group := c.group
	defer conn.Close()

	if !c.autoReconnect || group == nil {
		notify := c.setStateLocked(Disconnected)
		c.mu.Unlock()
		notify()
		c.logger.Info("connection closed", slog.Any("error", cause))
		return
	}
	notify := c.setStateLocked(Reconnecting)
	c.mu.Unlock()
	notify()

	c.logger.Warn("connection lost, reconnecting", slog.Any("error", cause))
	group.Go(func(ctx context.Context) {
		c.reconnectLoop(ctx, group)
	})
}

// reconnectDelay returns ReconnectDelay * 2^(attempt-1).
func (c *Client) reconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	return c.cfg.ReconnectDelay * time.Duration(1<<shift)
}

func (c *Client) reconnectLoop(ctx context.Context, group *syncutil.Group) {
	for {
		c.mu.Lock()
		if c.group != group {
			c.mu.Unlock()
			return
		}
		if c.attempts >= c.cfg.MaxReconnectAttempts {
			c.attempts = 0
			notify := c.setStateLocked(Disconnected)
			c.mu.Unlock()
			notify()
			c.logger.Error("giving up reconnecting", slog.Int("max_attempts", c.cfg.MaxReconnectAttempts))
			c.emitError(ErrReconnectExhausted)
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		delay := c.reconnectDelay(attempt)
		c.logger.Debug("reconnect scheduled", slog.Int("attempt", attempt), slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.connMu.Lock()
		var err error
		notify := func() {}
		if c.State() != Connected {
			notify, err = c.dial(ctx, group)
		}
		c.connMu.Unlock()
		notify()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("reconnect failed", slog.Int("attempt", attempt), slog.Any("error", err))
			c.setState(group, Reconnecting)
			continue
		}

		c.mu.Lock()
		c.attempts = 0
		ids := slices.Clone(c.subscribed)
		c.mu.Unlock()

		if len(ids) > 0 {
			if err := c.Subscribe(ctx, ids...); err != nil {
				c.logger.Warn("resubscribe failed", slog.Any("error", err))
			}
		}
		return
	}
}

func (c *Client) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) failPendingLocked(err error) {
	for id, call := range c.pending {
		call.ch <- reply{err: err}
		delete(c.pending, id)
	}
}

// setState transitions to s if group is still the active session.
func (c *Client) setState(group *syncutil.Group, s State) {
	c.mu.Lock()
	if c.group != group {
		c.mu.Unlock()
		return
	}
	notify := c.setStateLocked(s)
	c.mu.Unlock()
	notify()
}

// setStateLocked records s and returns a func that runs the state handlers;
// call it after releasing c.mu.
func (c *Client) setStateLocked(s State) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	handlers := slices.Clone(c.onState)
	return func() {
		for _, fn := range handlers {
			fn(s)
		}
	}
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	handlers := slices.Clone(c.onError)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}
