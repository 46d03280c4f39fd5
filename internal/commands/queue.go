// Package commands decodes operator commands and applies them one at a time.
package commands

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("command queue full")
	ErrQueueClosed = errors.New("command queue closed")
)

// DefaultQueueSize is used when NewQueue gets a non-positive size.
const DefaultQueueSize = 128

// Queue is the bounded in-process command channel between producers (the
// operator API) and the executor. Delivery is at-most-once.
type Queue struct {
	mu     sync.RWMutex
	ch     chan []byte
	closed bool
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan []byte, size)}
}

// Publish enqueues an encoded command without blocking.
func (q *Queue) Publish(ctx context.Context, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- raw:
		return nil
	default:
		return ErrQueueFull
	}
}

// Messages is the receive side; it is closed by Close.
func (q *Queue) Messages() <-chan []byte { return q.ch }

// Len returns the number of queued commands.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops accepting commands. Already queued commands stay readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
