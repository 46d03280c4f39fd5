// Package cards maintains the card store and its one-active-card-per-conversation index.
package cards

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/events"
	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
)

// Service owns every card mutation. Put, Delete and ResolveConversation are
// serialized so lifecycle events leave in the order the store changed:
// a superseded card's Deleted event always precedes its successor's Created.
type Service struct {
	mu    sync.Mutex
	store store.Store
	pub   events.Publisher
	log   zerolog.Logger

	newID func() string
	now   func() time.Time
}

// ErrMuted is returned by PutUnlessMuted when the card's conversation is muted.
var ErrMuted = errors.New("conversation is muted")

// NewService wires a card service over s, publishing lifecycle events to pub.
func NewService(s store.Store, pub events.Publisher, log zerolog.Logger) *Service {
	return &Service{
		store: s,
		pub:   pub,
		log:   log.With().Str("component", "cards").Logger(),
		newID: func() string { return uuid.New().String() },
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Put stores card as the active card of its conversation. A previously active
// card for the same conversation is removed first; its id is returned as
// supersededID. Failure to remove it is logged and does not block the insert.
func (s *Service) Put(ctx context.Context, card *model.Card) (storedID, supersededID string, err error) {
	return s.put(ctx, card, false)
}

// PutUnlessMuted is Put for generated cards. The mute set is read under the
// same lock ResolveConversation holds, so a conversation muted while its card
// was being produced ends with no active card. It returns ErrMuted and stores
// nothing when the conversation is muted.
func (s *Service) PutUnlessMuted(ctx context.Context, card *model.Card) (storedID, supersededID string, err error) {
	return s.put(ctx, card, true)
}

func (s *Service) put(ctx context.Context, card *model.Card, unlessMuted bool) (storedID, supersededID string, err error) {
	if card == nil {
		return "", "", model.NewValidationError("card", "is required")
	}
	if !card.ConversationKey.Valid() {
		return "", "", model.NewValidationError("conversation_key", "is required")
	}

	c := card.Clone()
	if c.ID == "" {
		c.ID = s.newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	if unlessMuted {
		muted, err := s.store.Mutes().Contains(ctx, c.ConversationKey)
		if err != nil {
			return "", "", fmt.Errorf("check mute: %w", err)
		}
		if muted {
			return "", "", ErrMuted
		}
	}

	staleID, err := s.store.Cards().ActiveID(ctx, c.ConversationKey)
	if err != nil {
		s.log.Error().Stack().Err(err).Str("conversation_key", c.ConversationKey.String()).Msg("active index lookup failed")
		staleID = ""
	}
	if staleID != "" && staleID != c.ID {
		removed, rmErr := s.removeLocked(ctx, c.ConversationKey, staleID)
		if rmErr != nil {
			s.log.Error().Stack().Err(rmErr).
				Str("card_id", staleID).
				Str("conversation_key", c.ConversationKey.String()).
				Msg("failed to remove superseded card")
		}
		if removed || rmErr != nil {
			s.pub.Publish(model.Deleted(staleID))
			supersededID = staleID
		}
	}

	if err := s.store.Cards().Insert(ctx, c); err != nil {
		return "", supersededID, fmt.Errorf("insert card: %w", err)
	}
	if err := s.store.Cards().SetActive(ctx, c.ConversationKey, c.ID); err != nil {
		if _, rmErr := s.store.Cards().Remove(ctx, c.ID); rmErr != nil {
			s.log.Error().Stack().Err(rmErr).Str("card_id", c.ID).Msg("failed to roll back card insert")
		}
		return "", supersededID, fmt.Errorf("set active card: %w", err)
	}

	s.pub.Publish(model.Created(c.Clone()))
	s.log.Info().
		Str("card_id", c.ID).
		Str("conversation_key", c.ConversationKey.String()).
		Str("superseded_id", supersededID).
		Msg("card stored")
	return c.ID, supersededID, nil
}

// Delete removes the card with id. It reports false, without error, when the
// card does not exist, so repeated deletes are harmless.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.store.Cards().Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	removed, err := s.removeLocked(ctx, card.ConversationKey, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.pub.Publish(model.Deleted(id))
		s.log.Info().Str("card_id", id).Str("conversation_key", card.ConversationKey.String()).Msg("card deleted")
	}
	return removed, nil
}

// ResolveConversation deletes the active card of key, if any, and returns its id.
func (s *Service) ResolveConversation(ctx context.Context, key model.ConversationKey) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.Cards().ActiveID(ctx, key)
	if err != nil {
		return "", false, err
	}
	if id == "" {
		return "", false, nil
	}
	removed, err := s.removeLocked(ctx, key, id)
	if err != nil {
		return id, false, err
	}
	if removed {
		s.pub.Publish(model.Deleted(id))
		s.log.Info().Str("card_id", id).Str("conversation_key", key.String()).Msg("conversation resolved")
	}
	return id, removed, nil
}

// ListAll returns every stored card, newest first.
func (s *Service) ListAll(ctx context.Context) ([]*model.Card, error) {
	return s.store.Cards().List(ctx)
}

// Get returns model.ErrNotFound when id is unknown.
func (s *Service) Get(ctx context.Context, id string) (*model.Card, error) {
	return s.store.Cards().Get(ctx, id)
}

// ActiveCard returns the active card of key or model.ErrNotFound.
func (s *Service) ActiveCard(ctx context.Context, key model.ConversationKey) (*model.Card, error) {
	id, err := s.store.Cards().ActiveID(ctx, key)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, model.ErrNotFound
	}
	return s.store.Cards().Get(ctx, id)
}

// removeLocked clears the index entry (only while it still points at id) and
// then removes the card. Callers hold s.mu.
func (s *Service) removeLocked(ctx context.Context, key model.ConversationKey, id string) (bool, error) {
	if _, err := s.store.Cards().ClearActive(ctx, key, id); err != nil {
		return false, fmt.Errorf("clear active index: %w", err)
	}
	removed, err := s.store.Cards().Remove(ctx, id)
	if err != nil {
		return false, fmt.Errorf("remove card: %w", err)
	}
	return removed, nil
}
