// Example basic: call a node's REST API with retries, rate limiting and
// request logging.
//
// Usage:
//
//	TETHER_BASE_URL=http://localhost:2428 go run ./example/basic
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/hedeqiang/tether"
	mw "github.com/hedeqiang/tether/middleware"
	"github.com/hedeqiang/tether/retry"
	"github.com/hedeqiang/tether/transport"
)

type contextInfo struct {
	ID            string `json:"id"`
	ApplicationID string `json:"applicationId"`
}

func main() {
	// 1. Load config: defaults, ./tether.yaml if present, then TETHER_* env
	cfg, err := tether.LoadConfig("tether.yaml")
	if err != nil {
		log.Fatal(err)
	}
	if cfg.BaseURL == "" {
		log.Fatal("TETHER_BASE_URL environment variable is required")
	}

	// 2. Retry 5xx, timeouts and 429 with a Retry-After floor
	policy := retry.DefaultPolicy()
	policy.ShouldRetry = retry.RetryOn(429)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		fmt.Printf("attempt %d failed (%v), retrying in %s\n", attempt, err, delay)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c, err := tether.New(cfg,
		tether.WithLogger(logger),
		tether.WithRetryPolicy(policy),
		tether.WithMiddleware(mw.NewRateLimit(100*time.Millisecond, 5)),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 3. Typed envelope decoding
	contexts, err := transport.DecodeEnvelope[[]contextInfo](c.HTTP().Get(ctx, "/admin-api/contexts"))
	var httpErr *transport.HTTPError
	switch {
	case errors.As(err, &httpErr):
		log.Fatalf("node answered %d: %s", httpErr.StatusCode, httpErr.Body)
	case err != nil:
		log.Fatal(err)
	}
	for _, info := range contexts {
		fmt.Printf("context %s (app %s)\n", info.ID, info.ApplicationID)
	}

	// 4. Per-call options override the client defaults
	resp, err := c.HTTP().Get(ctx, "/admin-api/health",
		transport.Timeout(2*time.Second),
		transport.NoRetry(),
		transport.As(transport.ModeText),
	)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("health:", resp.Text())

	m := c.Metrics()
	fmt.Printf("requests=%d failures=%d 5xx=%d\n", m.Requests, m.Failures, m.Status5xx)
}
