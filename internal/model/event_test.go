package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLifecycleEventWireShape(t *testing.T) {
	card := &Card{
		ID:              "c1",
		ConversationKey: "42",
		Title:           "Alice",
		CardContent: CardContent{
			Summary: "Asked if you are free tomorrow.",
			Urgency: UrgencyMedium,
			ReplyOptions: []ReplyOption{
				{Label: "Accept", Text: []string{"yes", "what time?"}, Sentiment: SentimentPositive},
			},
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	raw, err := json.Marshal(Created(card))
	if err != nil {
		t.Fatalf("marshal created: %v", err)
	}
	var created map[string]any
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	for _, k := range []string{"action", "id", "conversation_key", "title", "summary", "urgency", "reply_options", "created_at"} {
		if _, ok := created[k]; !ok {
			t.Fatalf("created event missing %q: %s", k, raw)
		}
	}
	if created["action"] != "create" || created["conversation_key"] != "42" {
		t.Fatalf("unexpected created payload: %s", raw)
	}

	raw, err = json.Marshal(Deleted("c1"))
	if err != nil {
		t.Fatalf("marshal deleted: %v", err)
	}
	if string(raw) != `{"action":"delete","id":"c1"}` {
		t.Fatalf("unexpected deleted payload: %s", raw)
	}

	raw, err = json.Marshal(Resync(3))
	if err != nil {
		t.Fatalf("marshal resync: %v", err)
	}
	if string(raw) != `{"action":"resync","dropped":3}` {
		t.Fatalf("unexpected resync payload: %s", raw)
	}
}

func TestNewerFirst(t *testing.T) {
	t0 := time.Now()
	a := &Card{ID: "a", CreatedAt: t0}
	b := &Card{ID: "b", CreatedAt: t0}
	c := &Card{ID: "c", CreatedAt: t0.Add(time.Second)}

	if NewerFirst(c, a) >= 0 {
		t.Fatalf("newer card must sort first")
	}
	if NewerFirst(a, b) >= 0 {
		t.Fatalf("equal timestamps must tie-break by id")
	}
}

func TestCardCloneIsDeep(t *testing.T) {
	orig := &Card{ID: "x", CardContent: CardContent{ReplyOptions: []ReplyOption{{Text: []string{"hi"}}}}}
	cp := orig.Clone()
	cp.ReplyOptions[0].Text[0] = "changed"
	if orig.ReplyOptions[0].Text[0] != "hi" {
		t.Fatalf("clone shares reply text with original")
	}
}
