package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/hedeqiang/tether/retry"
	"github.com/hedeqiang/tether/signal"
)

// Client issues requests against one node. It is safe for concurrent use;
// calls share nothing but the immutable configuration and the cookie jar.
type Client struct {
	cfg     Config
	base    *url.URL
	logger  *slog.Logger
	refresh singleflight.Group
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Client from a complete Config.
func NewWithConfig(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Headers = mergeHeaders(cfg.Headers, nil)
	if cfg.Doer == nil {
		cfg.Doer = &http.Client{}
	}
	if cfg.Retry != nil {
		p := *cfg.Retry
		cfg.Retry = &p
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{cfg: cfg, logger: logger.With(slog.String("component", "transport"))}
	if cfg.BaseURL != "" {
		c.base, _ = url.Parse(cfg.BaseURL)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, opts...)
}

// Post issues a POST request. body may be nil, a *FormData, url.Values,
// json.RawMessage, []byte, string, io.Reader, or any value encodable as JSON.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, append(opts, Body(body))...)
}

// Put issues a PUT request. See Post for body handling.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, append(opts, Body(body))...)
}

// Patch issues a PATCH request. See Post for body handling.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPatch, path, append(opts, Body(body))...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, opts...)
}

// Head issues a HEAD request. Unless overridden, the response carries status
// and headers only.
func (c *Client) Head(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodHead, path, append([]RequestOption{As(ModeResponse)}, opts...)...)
}

// call is the resolved, replayable form of a request.
type call struct {
	method      string
	url         *url.URL
	headers     http.Header
	body        *payload
	mode        ParseMode
	timeout     time.Duration
	credentials CredentialsMode
}

// Request issues a request with an arbitrary method.
func (c *Client) Request(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	o := requestOptions{headers: make(http.Header)}
	for _, opt := range opts {
		opt(&o)
	}

	target, err := resolveURL(c.cfg.BaseURL, path, o.query)
	if err != nil {
		return nil, err
	}
	body, err := encodeBody(o.body)
	if err != nil {
		return nil, err
	}

	cl := &call{
		method:      strings.ToUpper(method),
		url:         target,
		headers:     mergeHeaders(c.cfg.Headers, o.headers),
		body:        body,
		mode:        o.mode,
		timeout:     c.cfg.Timeout,
		credentials: c.cfg.Credentials,
	}
	body.applyContentType(cl.headers)
	if o.timeout != nil {
		cl.timeout = *o.timeout
	}
	if o.credentials != nil {
		cl.credentials = *o.credentials
	}

	base, cancel := signal.Compose(append([]context.Context{c.cfg.Context, ctx}, o.signals...)...)
	defer cancel()
	if base == nil {
		base = context.Background()
	}

	policy := c.cfg.Retry
	if o.retry != nil {
		policy = o.retry
	}
	if o.noRetry || policy == nil {
		return c.attempt(base, cl, 0)
	}

	p := *policy
	onRetry := p.OnRetry
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Debug("retrying request",
			slog.String("method", cl.method),
			slog.String("url", cl.url.String()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}
	return retry.DoValue(base, p, func(ctx context.Context, attempt int) (*Response, error) {
		return c.attempt(ctx, cl, attempt)
	})
}

// attempt performs one dispatch, including at most one token refresh.
func (c *Client) attempt(ctx context.Context, cl *call, attempt int) (*Response, error) {
	ctx, cancel := signal.WithTimeout(ctx, cl.timeout)
	defer cancel()

	headers := cl.headers.Clone()
	injected := c.injectAuth(ctx, headers)

	resp, err := c.send(ctx, cl, headers, attempt)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && injected && c.cfg.TokenRefresher != nil &&
		AuthErrorCode(resp.Header.Get(HeaderAuthError)) == AuthTokenExpired {
		expired := c.httpError(ctx, cl, resp)

		token, err := c.refreshToken(ctx)
		if err != nil {
			c.logger.Warn("token refresh failed", slog.Any("error", err))
			return nil, expired
		}
		headers.Set("Authorization", "Bearer "+token)

		resp, err = c.send(ctx, cl, headers, attempt)
		if err != nil {
			return nil, err
		}
	}

	return c.finish(ctx, cl, resp)
}

// injectAuth sets a bearer token when a getter is configured and the call
// has no Authorization header. Getter failures never fail the call.
func (c *Client) injectAuth(ctx context.Context, h http.Header) bool {
	if c.cfg.TokenGetter == nil || h.Get("Authorization") != "" {
		return false
	}
	token, err := c.cfg.TokenGetter(ctx)
	if err != nil {
		c.logger.Warn("token getter failed, sending request without authorization", slog.Any("error", err))
		return false
	}
	if token == "" {
		return false
	}
	h.Set("Authorization", "Bearer "+token)
	return true
}

func (c *Client) refreshToken(ctx context.Context) (string, error) {
	ch := c.refresh.DoChan("refresh", func() (any, error) {
		token, err := c.cfg.TokenRefresher(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		if token == "" {
			return "", ErrEmptyToken
		}
		if c.cfg.OnTokenRefreshed != nil {
			c.cfg.OnTokenRefreshed(token)
		}
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", context.Cause(ctx)
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) send(ctx context.Context, cl *call, headers http.Header, attempt int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, cl.method, cl.url.String(), cl.body.reader())
	if err != nil {
		return nil, &NetworkError{Method: cl.method, URL: cl.url.String(), Err: err}
	}
	req.Header = headers.Clone()

	sendCookies := c.cookiesAllowed(cl.url, cl.credentials)
	if sendCookies {
		for _, ck := range c.cfg.CookieJar.Cookies(cl.url) {
			req.AddCookie(ck)
		}
	}

	start := time.Now()
	resp, err := c.cfg.Doer.Do(req)
	if err != nil {
		return nil, c.dispatchError(ctx, cl, err)
	}

	if sendCookies {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			c.cfg.CookieJar.SetCookies(cl.url, cookies)
		}
	}

	c.logger.Debug("request",
		slog.String("method", cl.method),
		slog.String("url", cl.url.String()),
		slog.Int("status", resp.StatusCode),
		slog.Int("attempt", attempt),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// dispatchError tells a timeout or abort apart from a network failure.
func (c *Client) dispatchError(ctx context.Context, cl *call, err error) error {
	if reason := signal.Reason(ctx); reason != nil {
		return &cancelError{method: cl.method, url: cl.url.String(), cause: reason}
	}
	return &NetworkError{Method: cl.method, URL: cl.url.String(), Err: err}
}

func (c *Client) finish(ctx context.Context, cl *call, resp *http.Response) (*Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.httpError(ctx, cl, resp)
	}
	defer resp.Body.Close()

	mode := cl.mode
	if mode == ModeAuto {
		mode = InferMode(resp.Header.Get("Content-Type"))
	}

	out := &Response{
		Method:     cl.method,
		URL:        cl.url.String(),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Mode:       mode,
	}
	if mode == ModeResponse {
		return out, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.dispatchError(ctx, cl, err)
	}
	out.Body = body

	if mode == ModeJSON && !validJSON(body) {
		return nil, &ParseError{URL: out.URL, ContentType: resp.Header.Get("Content-Type"), Err: errInvalidJSON}
	}
	return out, nil
}

// httpError reads at most MaxErrorBody bytes and closes the body.
func (c *Client) httpError(ctx context.Context, cl *call, resp *http.Response) *HTTPError {
	defer resp.Body.Close()

	e := &HTTPError{
		Method:     cl.method,
		URL:        cl.url.String(),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
	if err != nil {
		e.BodyErr = c.dispatchError(ctx, cl, err)
		return e
	}
	if len(body) == MaxErrorBody {
		body = trimPartialRune(body)
	}
	e.Body = string(body)
	return e
}

// trimPartialRune drops a multi-byte UTF-8 sequence cut off at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			return b
		}
	}
	return b
}
