// Package storetest holds the compliance suite every store backend must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
)

// Run exercises a minimal compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("CardRoundTrip", func(t *testing.T) { cardRoundTrip(t, makeStore(t)) })
	t.Run("ListOrdering", func(t *testing.T) { listOrdering(t, makeStore(t)) })
	t.Run("RemoveIsIdempotent", func(t *testing.T) { removeIsIdempotent(t, makeStore(t)) })
	t.Run("ActiveIndexOwnership", func(t *testing.T) { activeIndexOwnership(t, makeStore(t)) })
	t.Run("Mutes", func(t *testing.T) { muteSet(t, makeStore(t)) })
}

func newCard(key model.ConversationKey, created time.Time) *model.Card {
	dt := "2026-03-01 14:00:00"
	dur := 60
	return &model.Card{
		ID:              uuid.New().String(),
		ConversationKey: key,
		Title:           "Alice",
		CardContent: model.CardContent{
			Summary:         "Alice asks about lunch",
			Urgency:         model.UrgencyMedium,
			SuggestedAction: model.ActionReply,
			ReplyOptions: []model.ReplyOption{
				{Label: "Yes", Text: []string{"sure", "see you"}, Sentiment: model.SentimentPositive},
			},
			CalendarDetails: &model.CalendarDetails{Title: "Lunch", DateTime: &dt, Duration: &dur, EventType: "meal"},
		},
		ConversationHistory: []string{"Alice: lunch?"},
		CreatedAt:           created,
	}
}

func base() time.Time { return time.Now().UTC().Truncate(time.Second) }

func cardRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := model.ConversationKey("k-" + uuid.New().String())
	c := newCard(key, base())

	if err := s.Cards().Insert(ctx, c); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Cards().Insert(ctx, c); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("Insert duplicate: want ErrConflict, got %v", err)
	}

	got, err := s.Cards().Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ConversationKey != key || got.Title != c.Title || got.Summary != c.Summary || got.Urgency != c.Urgency {
		t.Fatalf("Get: mismatched card %+v", got)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Fatalf("Get: created_at %s != %s", got.CreatedAt, c.CreatedAt)
	}
	if len(got.ReplyOptions) != 1 || len(got.ReplyOptions[0].Text) != 2 || got.ReplyOptions[0].Text[1] != "see you" {
		t.Fatalf("Get: reply options not preserved: %+v", got.ReplyOptions)
	}
	if got.CalendarDetails == nil || got.CalendarDetails.Duration == nil || *got.CalendarDetails.Duration != 60 {
		t.Fatalf("Get: calendar details not preserved: %+v", got.CalendarDetails)
	}

	got.ReplyOptions[0].Text[0] = "mutated"
	again, _ := s.Cards().Get(ctx, c.ID)
	if again.ReplyOptions[0].Text[0] != "sure" {
		t.Fatalf("stored card must not alias returned values")
	}

	if _, err := s.Cards().Get(ctx, "missing-"+uuid.New().String()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}
}

func listOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	t0 := base()
	c1 := newCard("order-1", t0.Add(1*time.Second))
	c2 := newCard("order-2", t0.Add(2*time.Second))
	c3 := newCard("order-3", t0.Add(3*time.Second))
	tieA := newCard("tie-a", t0)
	tieB := newCard("tie-b", t0)
	tieA.ID, tieB.ID = "00000000-aaaa", "00000000-bbbb"

	for _, c := range []*model.Card{c2, tieB, c1, c3, tieA} {
		if err := s.Cards().Insert(ctx, c); err != nil {
			t.Fatalf("Insert %s: %v", c.ID, err)
		}
	}

	lst, err := s.Cards().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{c3.ID, c2.ID, c1.ID, tieA.ID, tieB.ID}
	if len(lst) != len(want) {
		t.Fatalf("List: n=%d want %d", len(lst), len(want))
	}
	for i, id := range want {
		if lst[i].ID != id {
			t.Fatalf("List[%d]=%s want %s", i, lst[i].ID, id)
		}
	}
}

func removeIsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newCard("rm", base())
	if err := s.Cards().Insert(ctx, c); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ok, err := s.Cards().Remove(ctx, c.ID); err != nil || !ok {
		t.Fatalf("Remove first: ok=%v err=%v", ok, err)
	}
	if ok, err := s.Cards().Remove(ctx, c.ID); err != nil || ok {
		t.Fatalf("Remove second: ok=%v err=%v", ok, err)
	}
	if lst, err := s.Cards().List(ctx); err != nil || len(lst) != 0 {
		t.Fatalf("List after remove: n=%d err=%v", len(lst), err)
	}
}

func activeIndexOwnership(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := model.ConversationKey("42")

	if id, err := s.Cards().ActiveID(ctx, key); err != nil || id != "" {
		t.Fatalf("ActiveID empty: id=%q err=%v", id, err)
	}
	if err := s.Cards().SetActive(ctx, key, "card-a"); err != nil {
		t.Fatalf("SetActive a: %v", err)
	}
	if err := s.Cards().SetActive(ctx, key, "card-b"); err != nil {
		t.Fatalf("SetActive b: %v", err)
	}
	if id, _ := s.Cards().ActiveID(ctx, key); id != "card-b" {
		t.Fatalf("ActiveID: got %q want card-b", id)
	}

	// A stale owner must not clear the newer entry.
	if ok, err := s.Cards().ClearActive(ctx, key, "card-a"); err != nil || ok {
		t.Fatalf("ClearActive stale: ok=%v err=%v", ok, err)
	}
	if id, _ := s.Cards().ActiveID(ctx, key); id != "card-b" {
		t.Fatalf("stale clear removed the entry: %q", id)
	}
	if ok, err := s.Cards().ClearActive(ctx, key, "card-b"); err != nil || !ok {
		t.Fatalf("ClearActive owner: ok=%v err=%v", ok, err)
	}
	if ok, err := s.Cards().ClearActive(ctx, key, "card-b"); err != nil || ok {
		t.Fatalf("ClearActive again: ok=%v err=%v", ok, err)
	}
	if id, _ := s.Cards().ActiveID(ctx, key); id != "" {
		t.Fatalf("ActiveID after clear: %q", id)
	}
}

func muteSet(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Mutes().Add(ctx, "b"); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	if err := s.Mutes().Add(ctx, "a"); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := s.Mutes().Add(ctx, "a"); err != nil {
		t.Fatalf("Add a again: %v", err)
	}
	if ok, err := s.Mutes().Contains(ctx, "a"); err != nil || !ok {
		t.Fatalf("Contains a: ok=%v err=%v", ok, err)
	}
	lst, err := s.Mutes().List(ctx)
	if err != nil || len(lst) != 2 || lst[0] != "a" || lst[1] != "b" {
		t.Fatalf("List: %v err=%v", lst, err)
	}
	if ok, err := s.Mutes().Remove(ctx, "a"); err != nil || !ok {
		t.Fatalf("Remove a: ok=%v err=%v", ok, err)
	}
	if ok, err := s.Mutes().Remove(ctx, "a"); err != nil || ok {
		t.Fatalf("Remove a again: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.Mutes().Contains(ctx, "a"); ok {
		t.Fatalf("a should be unmuted")
	}
}
