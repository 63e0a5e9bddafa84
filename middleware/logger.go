package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hedeqiang/tether/transport"
)

// Logger logs every dispatched request. Header values are never logged.
type Logger struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogger creates a logging middleware that logs at debug level.
// If l is nil, slog.Default is used.
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{logger: l, level: slog.LevelDebug}
}

// WithLevel sets the level used for successful requests. Failures are
// always logged at warn.
func (l *Logger) WithLevel(level slog.Level) *Logger {
	l.level = level
	return l
}

// Wrap decorates next with request logging.
func (l *Logger) Wrap(next transport.Doer) transport.Doer {
	return transport.DoerFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.Do(req)

		attrs := []slog.Attr{
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			l.logger.LogAttrs(req.Context(), slog.LevelWarn, "http request failed", attrs...)
			return resp, err
		}

		attrs = append(attrs, slog.Int("status", resp.StatusCode))
		level := l.level
		if resp.StatusCode >= 500 {
			level = slog.LevelWarn
		}
		l.logger.LogAttrs(req.Context(), level, "http request", attrs...)
		return resp, nil
	})
}
