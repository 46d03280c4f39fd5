package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hideapp/hide/internal/cards"
	"github.com/hideapp/hide/internal/debounce"
	"github.com/hideapp/hide/internal/events"
	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
	"github.com/hideapp/hide/internal/store/memory"
)

// --- Fakes ---

type fakeSummarizer struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeSummarizer) Summarize(_ context.Context, title string, lines []string) (model.CardContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), lines...))
	if f.err != nil {
		return model.CardContent{}, f.err
	}
	return model.CardContent{Summary: title + ": " + lines[len(lines)-1], Urgency: model.UrgencyLow}, nil
}

func (f *fakeSummarizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// gateSummarizer blocks inside Summarize until release is closed.
type gateSummarizer struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateSummarizer) Summarize(_ context.Context, title string, lines []string) (model.CardContent, error) {
	close(g.entered)
	<-g.release
	return model.CardContent{Summary: title + ": late"}, nil
}

// putRecorder reports the outcome of each put on done.
type putRecorder struct {
	CardPutter
	done chan error
}

func (r *putRecorder) PutUnlessMuted(ctx context.Context, card *model.Card) (string, string, error) {
	id, sup, err := r.CardPutter.PutUnlessMuted(ctx, card)
	r.done <- err
	return id, sup, err
}

type env struct {
	pipe  *Pipeline
	deb   *debounce.Coalescer
	cards *cards.Service
	store store.Store
	sum   *fakeSummarizer
	sub   *events.Subscription
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	e := &env{store: memory.New(), sum: &fakeSummarizer{}, deb: debounce.New(zerolog.Nop())}
	t.Cleanup(e.deb.Close)
	broker := events.NewBroker(32, zerolog.Nop())
	e.sub = broker.Subscribe()
	t.Cleanup(e.sub.Close)
	e.cards = cards.NewService(e.store, broker, zerolog.Nop())
	e.pipe = New(e.deb, e.sum, e.cards, e.store.Mutes(), cfg, zerolog.Nop())
	return e
}

func (e *env) next(t *testing.T) model.LifecycleEvent {
	t.Helper()
	select {
	case evt := <-e.sub.Events():
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lifecycle event")
	}
	return model.LifecycleEvent{}
}

func msg(key model.ConversationKey, sender, text string) Message {
	return Message{ConversationKey: key, SenderName: sender, Text: text, Kind: ChatPrivate}
}

func TestBurstProducesOneCardWithFullTranscript(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{Delay: 30 * time.Millisecond})

	for _, text := range []string{"hey", "you there?", "lunch?"} {
		armed, err := e.pipe.Ingest(ctx, msg("42", "Alice", text))
		require.NoError(t, err)
		assert.True(t, armed)
	}

	evt := e.next(t)
	require.Equal(t, model.EventCreated, evt.Kind)
	assert.Equal(t, "Alice", evt.Card.Title)
	assert.Equal(t, []string{"Alice: hey", "Alice: you there?", "Alice: lunch?"}, evt.Card.ConversationHistory)
	assert.Equal(t, "Alice: Alice: lunch?", evt.Card.Summary)
	assert.Equal(t, 1, e.sum.count())
}

func TestFollowUpSupersedesCard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{Delay: 10 * time.Millisecond})

	_, err := e.pipe.Ingest(ctx, msg("42", "Alice", "first"))
	require.NoError(t, err)
	a := e.next(t)
	require.Equal(t, model.EventCreated, a.Kind)

	_, err = e.pipe.Ingest(ctx, msg("42", "Alice", "second"))
	require.NoError(t, err)
	del := e.next(t)
	b := e.next(t)

	assert.Equal(t, model.Deleted(a.CardID), del)
	require.Equal(t, model.EventCreated, b.Kind)

	activeID, err := e.store.Cards().ActiveID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, b.CardID, activeID)
	all, err := e.cards.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.CardID, all[0].ID)
	assert.Equal(t, []string{"Alice: first", "Alice: second"}, b.Card.ConversationHistory)
}

func TestFilters(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{Delay: time.Hour, OmitGroups: true})
	require.NoError(t, e.store.Mutes().Add(ctx, "muted"))

	tests := []struct {
		name string
		msg  Message
	}{
		{"channel", Message{ConversationKey: "c", Text: "news", Kind: ChatChannel}},
		{"group omitted", Message{ConversationKey: "g", Text: "hi", Kind: ChatGroup, ChatTitle: "Team"}},
		{"muted", msg("muted", "Bob", "hi")},
		{"outgoing", Message{ConversationKey: "o", Text: "hi", Outgoing: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			armed, err := e.pipe.Ingest(ctx, tt.msg)
			require.NoError(t, err)
			assert.False(t, armed)
			_, pending := e.deb.Pending(tt.msg.ConversationKey.String())
			assert.False(t, pending)
		})
	}

	_, err := e.pipe.Ingest(ctx, Message{Text: "x"})
	assert.True(t, model.IsValidationError(err))
}

func TestGroupTitleAndUnknownFallback(t *testing.T) {
	assert.Equal(t, "Team", titleOf(Message{Kind: ChatGroup, ChatTitle: "Team", SenderName: "Bob"}))
	assert.Equal(t, "Bob", titleOf(Message{Kind: ChatPrivate, SenderName: "Bob"}))
	assert.Equal(t, "Unknown", titleOf(Message{Kind: ChatGroup}))
	assert.Equal(t, "Unknown", titleOf(Message{Kind: ChatPrivate, SenderName: " "}))
}

func TestOperatorReplyBeforeFireSkipsCard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{Delay: 30 * time.Millisecond})

	_, err := e.pipe.Ingest(ctx, msg("42", "Alice", "ping"))
	require.NoError(t, err)
	_, err = e.pipe.Ingest(ctx, Message{ConversationKey: "42", Text: "pong", Outgoing: true})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, e.sum.count())
	assert.Equal(t, []string{"Alice: ping", "Me: pong"}, transcript(e.pipe.History("42")))
}

func TestMuteAfterArmSkipsCard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{Delay: 20 * time.Millisecond})

	_, err := e.pipe.Ingest(ctx, msg("42", "Alice", "ping"))
	require.NoError(t, err)
	require.NoError(t, e.store.Mutes().Add(ctx, "42"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, e.sum.count())
}

func TestCancelDropsPendingTrigger(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{Delay: 20 * time.Millisecond})

	_, err := e.pipe.Ingest(ctx, msg("42", "Alice", "ping"))
	require.NoError(t, err)
	e.pipe.Cancel("42")
	e.pipe.Cancel("42")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, e.sum.count())
}

func TestSummarizerFailureLeavesNoCard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{Delay: 5 * time.Millisecond})
	e.sum.err = errors.New("quota exceeded")

	_, err := e.pipe.Ingest(ctx, msg("42", "Alice", "ping"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.sum.count() == 1 }, time.Second, 5*time.Millisecond)

	all, err := e.cards.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestHistoryIsBounded(t *testing.T) {
	e := newEnv(t, Config{Delay: time.Hour, HistoryLimit: 3})
	for _, text := range []string{"1", "2", "3", "4", "5"} {
		_, err := e.pipe.Ingest(context.Background(), msg("42", "A", text))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"A: 3", "A: 4", "A: 5"}, transcript(e.pipe.History("42")))
}

func TestMuteWhileSummarizingLeavesNoCard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{Delay: 5 * time.Millisecond})
	gate := &gateSummarizer{entered: make(chan struct{}), release: make(chan struct{})}
	rec := &putRecorder{CardPutter: e.cards, done: make(chan error, 1)}
	e.pipe.sum = gate
	e.pipe.cards = rec

	_, err := e.pipe.Ingest(ctx, msg("42", "Alice", "ping"))
	require.NoError(t, err)
	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("summarizer never called")
	}

	// what the executor does for a mute command
	require.NoError(t, e.store.Mutes().Add(ctx, "42"))
	e.pipe.Cancel("42")
	_, resolved, err := e.cards.ResolveConversation(ctx, "42")
	require.NoError(t, err)
	assert.False(t, resolved)
	close(gate.release)

	select {
	case err := <-rec.done:
		assert.ErrorIs(t, err, cards.ErrMuted)
	case <-time.After(2 * time.Second):
		t.Fatal("put never attempted")
	}
	_, err = e.cards.ActiveCard(ctx, "42")
	assert.ErrorIs(t, err, model.ErrNotFound)
	all, err := e.cards.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestHistoryForgetsLeastRecentConversation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Config{Delay: time.Hour, MaxConversations: 2})
	for _, key := range []model.ConversationKey{"a", "b", "a", "c"} {
		_, err := e.pipe.Ingest(ctx, msg(key, "A", string(key)))
		require.NoError(t, err)
	}
	assert.Empty(t, e.pipe.History("b"), "least recently active conversation is evicted")
	assert.Equal(t, []string{"A: a", "A: a"}, transcript(e.pipe.History("a")))
	assert.Equal(t, []string{"A: c"}, transcript(e.pipe.History("c")))
	assert.Equal(t, 2, e.pipe.history.Len())
}
