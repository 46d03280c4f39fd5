// Package events fans card lifecycle events out to live subscribers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/model"
)

// DefaultBuffer is the per-subscriber buffer used when NewBroker gets a non-positive size.
const DefaultBuffer = 64

// Publisher is the producer side of the broker.
type Publisher interface {
	Publish(evt model.LifecycleEvent) int
}

// Broker is an in-process pub-sub with one bounded channel per subscriber.
// There is no backlog: a subscriber only sees events published after Subscribe returns.
// When a subscriber's buffer is full the oldest buffered event is dropped.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	log    zerolog.Logger
}

// NewBroker creates a broker with the given per-subscriber buffer size.
func NewBroker(buffer int, log zerolog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{subs: make(map[uint64]*Subscription), buffer: buffer, log: log}
}

// Publish offers evt to every current subscriber without blocking and
// returns how many subscribers accepted it.
func (b *Broker) Publish(evt model.LifecycleEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, s := range b.subs {
		if s.offer(evt) {
			delivered++
		}
	}
	return delivered
}

// Subscribe registers a new subscription. On a closed broker the returned
// subscription is already closed.
func (b *Broker) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{id: b.nextID, broker: b, ch: make(chan model.LifecycleEvent, b.buffer)}
	if b.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	b.subs[s.id] = s
	return s
}

// Unsubscribe releases s. Later publishes are not delivered to it.
func (b *Broker) Unsubscribe(s *Subscription) {
	if s != nil {
		s.Close()
	}
}

// Len returns the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription; later Subscribe calls return closed subscriptions.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is a live, non-resumable stream of lifecycle events.
type Subscription struct {
	id     uint64
	broker *Broker

	mu       sync.Mutex
	ch       chan model.LifecycleEvent
	closed   bool
	dropped  atomic.Uint64
	reported atomic.Uint64
	once     sync.Once
}

// Events returns the receive side. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan model.LifecycleEvent { return s.ch }

// Dropped returns how many events were discarded because the buffer was full.
// Any drop can leave the consumer's view wrong, e.g. a lost Deleted for a card
// whose successor's Created was kept. A consumer that sees Dropped() > 0 must
// re-fetch the card list (GET /api/notifications) instead of trusting the
// events it holds.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// TakeResync returns a Resync event when events were dropped since the last
// call, and false otherwise. Stream writers call it before forwarding each
// event so the client learns about the gap ahead of the events that follow it.
func (s *Subscription) TakeResync() (model.LifecycleEvent, bool) {
	n := s.dropped.Load()
	if prev := s.reported.Swap(n); prev >= n {
		return model.LifecycleEvent{}, false
	}
	return model.Resync(n), true
}

// Close unsubscribes and closes the event channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s.id)
		s.mu.Lock()
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
		s.mu.Unlock()
	})
}

// offer enqueues evt, evicting the oldest buffered event when full.
func (s *Subscription) offer(evt model.LifecycleEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	select {
	case s.ch <- evt:
		return true
	default:
	}

	// Full: drop the oldest. The consumer may have drained concurrently,
	// in which case nothing is dropped.
	select {
	case <-s.ch:
		n := s.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			s.broker.log.Warn().Uint64("subscription", s.id).Uint64("dropped", n).Msg("subscriber buffer full, dropping oldest event")
		}
	default:
	}

	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}
