// Package lifecycle provides the shared restart-safe goroutine start/stop
// pattern: every long-running goroutine in this module (candle poller,
// reconciler ticker, WebSocket reader) follows the same
// done-channel-plus-context.CancelFunc shape, guarded by a mutex, rather
// than re-implementing it per component.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
)

// Runner wraps one long-running goroutine with idempotent Start/Stop. The
// zero value is ready to use. Grounded on ScalpingStrategy.Start/Stop and
// hyperliquid.WebSocketClient.Connect/Close: a guarded done channel that is
// recreated on each Start so a Runner can be stopped and restarted, and a
// context.CancelFunc used to unblock the worker's select loop.
type Runner struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Start launches work in a new goroutine under a context derived from ctx.
// work must return when the context it is given is cancelled. Start is a
// no-op error if the Runner is already running.
func (r *Runner) Start(ctx context.Context, work func(ctx context.Context)) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("lifecycle: already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.running = true
	r.mu.Unlock()

	go func() {
		defer close(done)
		work(runCtx)
	}()

	return nil
}

// Stop cancels the running goroutine's context and blocks until it has
// exited. Stop is a no-op if the Runner is not running. Safe to call more
// than once.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the wrapped goroutine is currently active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Group manages a named set of Runners so a daemon can Start/Stop all of
// its background loops (candle poller per symbol, reconciler, event
// stream) together without hand-tracking each one.
type Group struct {
	mu      sync.Mutex
	runners map[string]*Runner
}

// NewGroup constructs an empty Group.
func NewGroup() *Group {
	return &Group{runners: make(map[string]*Runner)}
}

// Go starts work under a new named Runner in the group. It is an error to
// reuse a name that is still running.
func (g *Group) Go(ctx context.Context, name string, work func(ctx context.Context)) error {
	g.mu.Lock()
	r, ok := g.runners[name]
	if !ok {
		r = &Runner{}
		g.runners[name] = r
	}
	g.mu.Unlock()

	if err := r.Start(ctx, work); err != nil {
		return fmt.Errorf("lifecycle: start %q: %w", name, err)
	}
	return nil
}

// StopAll stops every Runner in the group, waiting for each to exit.
func (g *Group) StopAll() {
	g.mu.Lock()
	runners := make([]*Runner, 0, len(g.runners))
	for _, r := range g.runners {
		runners = append(runners, r)
	}
	g.mu.Unlock()

	for _, r := range runners {
		r.Stop()
	}
}

// Stop stops a single named Runner, if present and running. The name stays
// registered in the group and can be started again with Go.
func (g *Group) Stop(name string) {
	g.mu.Lock()
	r, ok := g.runners[name]
	g.mu.Unlock()
	if !ok {
		return
	}
	r.Stop()
}
