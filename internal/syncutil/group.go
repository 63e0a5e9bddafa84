// Package syncutil provides concurrency utilities.
package syncutil

import (
	"context"
	"sync"
)

// Group runs goroutines that share a context and are stopped together.
// Once stopped, a Group refuses new goroutines.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewGroup creates a Group derived from ctx.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the group's context.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go launches fn in the group and reports whether it was started. fn should
// return when its context is cancelled.
func (g *Group) Go(fn func(ctx context.Context)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(g.ctx)
	}()
	return true
}

// Cancel cancels the group context without waiting. It may be called from
// inside the group.
func (g *Group) Cancel() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.cancel()
}

// Wait blocks until every goroutine in the group has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Stop cancels the group context and waits for all goroutines to finish.
// It is safe to call more than once, but not from inside the group.
func (g *Group) Stop() {
	g.Cancel()
	g.Wait()
}
