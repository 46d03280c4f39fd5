package store

import (
	"context"

	"github.com/hideapp/hide/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (memory, sqlite, postgres).
type Store interface {
	Cards() Cards
	Mutes() Mutes
}

// Cards persists cards and the active-conversation index.
// Consistency between the two is maintained by internal/cards, not here.
type Cards interface {
	// Insert stores a new card. A duplicate id returns model.ErrConflict.
	Insert(ctx context.Context, c *model.Card) error
	// Get returns model.ErrNotFound when id is unknown.
	Get(ctx context.Context, id string) (*model.Card, error)
	// Remove deletes the card and reports whether it existed.
	Remove(ctx context.Context, id string) (bool, error)
	// List returns all cards, newest first, ties broken by id.
	List(ctx context.Context) ([]*model.Card, error)

	// ActiveID returns the active card id for key, or "" when none.
	ActiveID(ctx context.Context, key model.ConversationKey) (string, error)
	// SetActive points key at id, replacing any previous entry.
	SetActive(ctx context.Context, key model.ConversationKey, id string) error
	// ClearActive removes the entry for key only if it still points at id.
	ClearActive(ctx context.Context, key model.ConversationKey, id string) (bool, error)
}

// Mutes is the set of conversations excluded from producing new cards.
type Mutes interface {
	Add(ctx context.Context, key model.ConversationKey) error
	Remove(ctx context.Context, key model.ConversationKey) (bool, error)
	Contains(ctx context.Context, key model.ConversationKey) (bool, error)
	List(ctx context.Context) ([]model.ConversationKey, error)
}
