// Example subscriber: stream context events over WebSocket with channel and
// callback subscribers.
//
// Usage:
//
//	TETHER_BASE_URL=http://localhost:2428 go run ./example/subscriber <context-id>...
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hedeqiang/tether"
	"github.com/hedeqiang/tether/event"
	"github.com/hedeqiang/tether/ws"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: subscriber <context-id>...")
	}

	cfg, err := tether.LoadConfig("")
	if err != nil {
		log.Fatal(err)
	}
	if cfg.BaseURL == "" {
		log.Fatal("TETHER_BASE_URL environment variable is required")
	}
	cfg.WebSocket.MaxReconnectAttempts = 10

	c, err := tether.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	events := c.Events()

	// --- Subscriber 1: Channel-based ---
	ch := events.Events(256)
	go func() {
		for ev := range ch.Events() {
			fmt.Printf("[Channel]  context=%s type=%s data=%s\n", ev.ContextID, ev.Type, ev.Data)
		}
	}()

	// --- Subscriber 2: Callback-based ---
	var cbCount atomic.Int64
	events.OnEvent(func(ev event.Event) {
		n := cbCount.Add(1)
		fmt.Printf("[Callback] #%d type=%s\n", n, ev.Type)
	})

	events.OnStateChange(func(s ws.State) {
		fmt.Println("[State]   ", s)
	})
	events.OnError(func(err error) {
		fmt.Println("[Error]   ", err)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := events.Connect(ctx); err != nil {
		log.Fatal(err)
	}
	if err := events.Subscribe(ctx, os.Args[1:]...); err != nil {
		log.Fatal(err)
	}
	cancel()

	fmt.Println("Listening for events... Press Ctrl+C to stop.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nShutting down...")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.Close(shutdown)

	fmt.Printf("Total callback invocations: %d\n", cbCount.Load())
}
