package hideservice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hideapp/hide/internal/config"
	"github.com/hideapp/hide/internal/model"
)

func TestCalculateStartupHealthTimeout(t *testing.T) {
	assert.Equal(t, 60, calculateStartupHealthTimeout(0))
	assert.Equal(t, 60, calculateStartupHealthTimeout(30))
	assert.Equal(t, 90, calculateStartupHealthTimeout(45))
}

func TestLateHealthBeforeStart(t *testing.T) {
	var l lateHealth
	assert.False(t, l.IsHealthy())
	assert.Empty(t, l.Components())
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func listCards(t *testing.T, base string) []model.Card {
	t.Helper()
	resp, err := http.Get(base + "/api/notifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out []model.Card
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: %s", msg)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Inbound message -> card -> operator reply -> card resolved.
func TestServiceEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.NewForTesting()
	a, err := newApp(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.close()
	a.startExecutor(ctx)

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/inbound", `{"conversation_key": "1", "sender_name": "Alice", "text": "dinner at 8?"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var card model.Card
	eventually(t, 2*time.Second, func() bool {
		cs := listCards(t, srv.URL)
		if len(cs) == 1 {
			card = cs[0]
			return true
		}
		return false
	}, "card was not created")
	assert.Equal(t, model.ConversationKey("1"), card.ConversationKey)
	assert.Equal(t, "Alice", card.Title)
	assert.Equal(t, "Alice: dinner at 8?", card.Summary)

	resp = post(t, srv.URL+"/api/reply", `{"conversation_key": "1", "text": "sure"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	eventually(t, 5*time.Second, func() bool { return len(listCards(t, srv.URL)) == 0 }, "reply did not resolve the card")

	resp = post(t, srv.URL+"/api/mute", `{"chat_id": 1}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	eventually(t, 2*time.Second, func() bool {
		ok, err := a.store.Mutes().Contains(ctx, "1")
		return err == nil && ok
	}, "mute was not applied")

	resp = post(t, srv.URL+"/api/inbound", `{"conversation_key": "1", "sender_name": "Alice", "text": "hello?"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, listCards(t, srv.URL), "muted conversations produce no cards")
}

// orderedCloser records whether the executor had returned when the store closed.
type orderedCloser struct {
	a                *app
	executorFinished bool
}

func (c *orderedCloser) Close() error {
	select {
	case <-c.a.executorDone:
		c.executorFinished = true
	default:
	}
	return nil
}

func TestCloseDrainsExecutorBeforeStore(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, config.NewForTesting(), zerolog.Nop())
	require.NoError(t, err)
	oc := &orderedCloser{a: a}
	a.closer = oc
	a.startExecutor(ctx)

	const n = 20
	for i := 0; i < n; i++ {
		raw := fmt.Sprintf(`{"action": "mute", "conversation_key": "%d"}`, i)
		require.NoError(t, a.queue.Publish(ctx, []byte(raw)))
	}
	a.close()

	assert.True(t, oc.executorFinished, "store closed while the executor was running")
	mutes, err := a.store.Mutes().List(ctx)
	require.NoError(t, err)
	assert.Len(t, mutes, n, "queued commands are applied before shutdown completes")
}

func TestCardLogsCarryOneComponentField(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	a, err := newApp(ctx, config.NewForTesting(), log)
	require.NoError(t, err)
	defer a.close()

	_, _, err = a.cards.Put(ctx, &model.Card{ConversationKey: "1", Title: "Alice"})
	require.NoError(t, err)

	found := false
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, `"card stored"`) {
			continue
		}
		found = true
		assert.Equal(t, 1, strings.Count(line, `"component"`), line)
		assert.Contains(t, line, `"component":"cards"`)
	}
	assert.True(t, found, "no card log line written")
}
