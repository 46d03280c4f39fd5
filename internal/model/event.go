package model

import "encoding/json"

type EventKind string

const (
	EventCreated EventKind = "create"
	EventDeleted EventKind = "delete"
	EventResync  EventKind = "resync"
)

// LifecycleEvent is the unit fanned out to live subscribers.
// Created events carry the card; Deleted events carry only its id.
// Resync events tell a lagging client that Dropped events were lost and
// its view must be re-fetched.
type LifecycleEvent struct {
	Kind    EventKind
	Card    *Card
	CardID  string
	Dropped uint64
}

// Created builds a Created event for c.
func Created(c *Card) LifecycleEvent {
	return LifecycleEvent{Kind: EventCreated, Card: c, CardID: c.ID}
}

// Deleted builds a Deleted event for id.
func Deleted(id string) LifecycleEvent {
	return LifecycleEvent{Kind: EventDeleted, CardID: id}
}

// Resync builds a Resync event after dropped events were lost.
func Resync(dropped uint64) LifecycleEvent {
	return LifecycleEvent{Kind: EventResync, Dropped: dropped}
}

// MarshalJSON renders the push wire shape:
// Created -> the card fields plus "action":"create"; Deleted -> {"action":"delete","id":...};
// Resync -> {"action":"resync","dropped":n}.
func (e LifecycleEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == EventResync {
		return json.Marshal(struct {
			Action  EventKind `json:"action"`
			Dropped uint64    `json:"dropped"`
		}{Action: EventResync, Dropped: e.Dropped})
	}
	if e.Kind == EventCreated && e.Card != nil {
		return json.Marshal(struct {
			Action EventKind `json:"action"`
			*Card
		}{Action: EventCreated, Card: e.Card})
	}
	return json.Marshal(struct {
		Action EventKind `json:"action"`
		ID     string    `json:"id"`
	}{Action: EventDeleted, ID: e.CardID})
}
