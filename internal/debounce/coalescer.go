// Package debounce collapses bursts of per-key triggers into one delayed call.
package debounce

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Callback runs once a key has been quiet for its delay.
// A returned error is logged; callbacks are never retried.
type Callback func(ctx context.Context) error

// pending is the scheduled trigger of one key. gen tags the timer that owns it.
type pending struct {
	gen      uint64
	deadline time.Time
	timer    *time.Timer
	fn       Callback
}

// Coalescer keeps at most one pending trigger per key. Arming a key that is
// already pending replaces its callback and restarts its delay.
type Coalescer struct {
	mu      sync.Mutex
	pending map[string]*pending
	seq     uint64
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// New creates a Coalescer. Callbacks receive a context that is cancelled by Close.
func New(log zerolog.Logger) *Coalescer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coalescer{
		pending: make(map[string]*pending),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}
}

// Arm schedules fn to run after delay unless key is armed or cancelled again first.
// It reports false when the coalescer is closed.
func (c *Coalescer) Arm(key string, delay time.Duration, fn Callback) bool {
	if delay < 0 {
		delay = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	if prev, ok := c.pending[key]; ok {
		prev.timer.Stop()
	}

	// seq is never reused, so a timer from a superseded entry can never
	// match a later entry for the same key.
	c.seq++
	gen := c.seq
	p := &pending{gen: gen, deadline: time.Now().Add(delay), fn: fn}
	p.timer = time.AfterFunc(delay, func() { c.fire(key, gen) })
	c.pending[key] = p
	return true
}

// Cancel drops the pending trigger for key. It is a no-op when none exists.
func (c *Coalescer) Cancel(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(c.pending, key)
	return true
}

// Pending reports whether key has a scheduled trigger and when it fires.
func (c *Coalescer) Pending(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[key]
	if !ok {
		return time.Time{}, false
	}
	return p.deadline, true
}

// Len returns the number of keys with a scheduled trigger.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops all pending triggers, cancels the callback context and waits
// for running callbacks to return.
func (c *Coalescer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for key, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, key)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coalescer) fire(key string, gen uint64) {
	c.mu.Lock()
	p, ok := c.pending[key]
	if !ok || p.gen != gen || c.closed {
		// superseded by a newer Arm, cancelled, or shutting down
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	c.run(key, p.fn)
}

// run executes fn outside the lock so slow callbacks never block other keys.
func (c *Coalescer) run(key string, fn Callback) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error().
				Stack().
				Err(fmt.Errorf("panic: %v", rec)).
				Str("key", key).
				Bytes("stack", debug.Stack()).
				Msg("debounce callback panicked")
		}
	}()

	if fn == nil {
		return
	}
	if err := fn(c.ctx); err != nil {
		c.log.Error().Stack().Err(err).Str("key", key).Msg("debounce callback failed")
	}
}
