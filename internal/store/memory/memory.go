// Package memory is the in-process store backend used when no database is configured.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
)

// New returns an empty in-memory store.
func New() store.Store {
	return &memStore{
		cards:  make(map[string]*model.Card),
		active: make(map[model.ConversationKey]string),
		mutes:  make(map[model.ConversationKey]struct{}),
	}
}

type memStore struct {
	mu     sync.RWMutex
	cards  map[string]*model.Card
	active map[model.ConversationKey]string
	mutes  map[model.ConversationKey]struct{}
}

func (s *memStore) Cards() store.Cards { return (*cards)(s) }
func (s *memStore) Mutes() store.Mutes { return (*mutes)(s) }

// HealthPing always succeeds; the backend has no external dependency.
func (s *memStore) HealthPing(ctx context.Context) error { return ctx.Err() }

// --- Cards ---
type cards memStore

func (c *cards) Insert(_ context.Context, card *model.Card) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cards[card.ID]; ok {
		return model.ErrConflict
	}
	c.cards[card.ID] = card.Clone()
	return nil
}

func (c *cards) Get(_ context.Context, id string) (*model.Card, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.cards[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return card.Clone(), nil
}

func (c *cards) Remove(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cards[id]; !ok {
		return false, nil
	}
	delete(c.cards, id)
	return true, nil
}

func (c *cards) List(_ context.Context) ([]*model.Card, error) {
	c.mu.RLock()
	out := make([]*model.Card, 0, len(c.cards))
	for _, card := range c.cards {
		out = append(out, card.Clone())
	}
	c.mu.RUnlock()
	slices.SortFunc(out, model.NewerFirst)
	return out, nil
}

func (c *cards) ActiveID(_ context.Context, key model.ConversationKey) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active[key], nil
}

func (c *cards) SetActive(_ context.Context, key model.ConversationKey, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[key] = id
	return nil
}

func (c *cards) ClearActive(_ context.Context, key model.ConversationKey, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.active[key]; !ok || cur != id {
		return false, nil
	}
	delete(c.active, key)
	return true, nil
}

// --- Mutes ---
type mutes memStore

func (m *mutes) Add(_ context.Context, key model.ConversationKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutes[key] = struct{}{}
	return nil
}

func (m *mutes) Remove(_ context.Context, key model.ConversationKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mutes[key]; !ok {
		return false, nil
	}
	delete(m.mutes, key)
	return true, nil
}

func (m *mutes) Contains(_ context.Context, key model.ConversationKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mutes[key]
	return ok, nil
}

func (m *mutes) List(_ context.Context) ([]model.ConversationKey, error) {
	m.mu.RLock()
	out := make([]model.ConversationKey, 0, len(m.mutes))
	for k := range m.mutes {
		out = append(out, k)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
