package commands

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultDedupeSize bounds how many idempotency keys a Deduper remembers.
const DefaultDedupeSize = 4096

// Deduper remembers idempotency keys for a window. A zero window disables it.
// When more than size keys are live the least recently marked is forgotten.
type Deduper struct {
	mu     sync.Mutex
	window time.Duration
	seen   *expirable.LRU[string, struct{}]
}

func NewDeduper(size int, window time.Duration) *Deduper {
	if size <= 0 {
		size = DefaultDedupeSize
	}
	d := &Deduper{window: window}
	if window > 0 {
		d.seen = expirable.NewLRU[string, struct{}](size, nil, window)
	}
	return d
}

// Seen reports whether key was marked within the window and marks it if not.
// Empty keys are never deduplicated.
func (d *Deduper) Seen(key string) bool {
	if key == "" || d.seen == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen.Get(key); ok {
		return true
	}
	d.seen.Add(key, struct{}{})
	return false
}

// Forget unmarks key so a failed delivery can be retried.
func (d *Deduper) Forget(key string) {
	if d.seen != nil {
		d.seen.Remove(key)
	}
}

// Len returns the number of remembered keys.
func (d *Deduper) Len() int {
	if d.seen == nil {
		return 0
	}
	return d.seen.Len()
}
