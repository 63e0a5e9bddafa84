package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hedeqiang/tether/signal"
)

// RefreshFunc exchanges a refresh token for a new token set.
type RefreshFunc func(ctx context.Context, refreshToken string) (TokenData, error)

// Manager hands out access tokens from a Storage and refreshes them on demand.
// Concurrent refreshes share a single exchange.
type Manager struct {
	store       Storage
	refresh     RefreshFunc
	onRefreshed func(TokenData)
	skew        time.Duration
	now         func() time.Time
	logger      *slog.Logger

	group singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRefreshFunc sets the token exchange used by Refresh.
func WithRefreshFunc(fn RefreshFunc) ManagerOption {
	return func(m *Manager) {
		m.refresh = fn
	}
}

// WithOnRefreshed registers a callback run after every successful refresh.
func WithOnRefreshed(fn func(TokenData)) ManagerOption {
	return func(m *Manager) {
		m.onRefreshed = fn
	}
}

// WithSkew sets how long before expiry a token is refreshed. Default 30s.
func WithSkew(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.skew = d
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager over store.
func NewManager(store Storage, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		skew:   30 * time.Second,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Storage returns the underlying store.
func (m *Manager) Storage() Storage {
	return m.store
}

// Login stores a freshly issued token.
func (m *Manager) Login(t TokenData) error {
	return m.store.SetToken(t)
}

// Logout clears the stored token.
func (m *Manager) Logout() error {
	return m.store.ClearToken()
}

// Current returns the stored token, or nil.
func (m *Manager) Current() *TokenData {
	return m.store.GetToken()
}

// Token returns a usable access token. A token that is expired or about to
// expire is refreshed first when a RefreshFunc is configured; otherwise it is
// returned as is and the server decides.
func (m *Manager) Token(ctx context.Context) (string, error) {
	t := m.store.GetToken()
	if t == nil || t.AccessToken == "" {
		return "", ErrNoToken
	}
	if m.refresh == nil || !t.ExpiredAt(m.now(), m.skew) {
		return t.AccessToken, nil
	}
	return m.Refresh(ctx)
}

// Refresh exchanges the stored refresh token and returns the new access
// token. Concurrent calls share one exchange, which is not cancelled when a
// single waiter gives up. The stored token is cleared when the refresh cannot
// succeed by retrying later.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.doRefresh(context.WithoutCancel(ctx))
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

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	if m.refresh == nil {
		return "", ErrNoRefresher
	}

	t := m.store.GetToken()
	if t == nil || t.RefreshToken == "" {
		m.clear()
		return "", ErrNoRefreshToken
	}

	next, err := m.refresh(ctx, t.RefreshToken)
	if err != nil {
		if !signal.IsTimeout(err) && !signal.IsAborted(err) {
			m.clear()
		}
		return "", fmt.Errorf("auth: refresh: %w", err)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = t.RefreshToken
	}

	if err := m.store.SetToken(next); err != nil {
		return "", err
	}
	m.logger.Debug("token refreshed", slog.Time("expires_at", next.Expiry()))

	if m.onRefreshed != nil {
		m.onRefreshed(next)
	}
	return next.AccessToken, nil
}

func (m *Manager) clear() {
	if err := m.store.ClearToken(); err != nil {
		m.logger.Warn("clear token after failed refresh", slog.Any("error", err))
	}
}
