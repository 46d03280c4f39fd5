package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hideapp/hide/internal/api"
	"github.com/hideapp/hide/internal/cards"
	"github.com/hideapp/hide/internal/commands"
	"github.com/hideapp/hide/internal/events"
	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
	"github.com/hideapp/hide/internal/store/memory"
)

type testService struct {
	srv    *httptest.Server
	st     store.Store
	cards  *cards.Service
	broker *events.Broker
	codec  *commands.Codec
	queue  *commands.Queue
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	st := memory.New()
	b := events.NewBroker(16, zerolog.Nop())
	codec, err := commands.NewCodec(time.UTC)
	require.NoError(t, err)
	s := &testService{st: st, broker: b, codec: codec, queue: commands.NewQueue(8)}
	s.cards = cards.NewService(st, b, zerolog.Nop())
	s.srv = httptest.NewServer(api.NewRouter(api.Deps{
		Cards:    s.cards,
		Broker:   b,
		Codec:    codec,
		Commands: s.queue,
		Mutes:    st.Mutes(),
		Log:      zerolog.Nop(),
	}))
	t.Cleanup(func() {
		b.Close()
		s.srv.Close()
	})
	return s
}

func (s *testService) put(t *testing.T, key, title string) string {
	t.Helper()
	id, _, err := s.cards.Put(context.Background(), &model.Card{
		ConversationKey: model.ConversationKey(key),
		Title:           title,
		CardContent:     model.CardContent{Summary: "asks about\nthe weekend", Urgency: model.UrgencyHigh},
	})
	require.NoError(t, err)
	return id
}

func (s *testService) command(t *testing.T) model.Command {
	t.Helper()
	select {
	case raw := <-s.queue.Messages():
		cmd, err := s.codec.Decode(raw)
		require.NoError(t, err)
		return cmd
	case <-time.After(time.Second):
		t.Fatalf("no command queued")
	}
	return nil
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestListAndDelete(t *testing.T) {
	s := newTestService(t)
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "list", "--api", s.srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "no pending cards")

	id := s.put(t, "42", "Alice")
	stdout, _, err = executeCLI(t, home, "list", "--api", s.srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, id)
	assert.Contains(t, stdout, "Alice")
	assert.Contains(t, stdout, "asks about the weekend")

	stdout, _, err = executeCLI(t, home, "delete", id, "--api", s.srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "deleted "+id)

	_, _, err = executeCLI(t, home, "delete", id, "--api", s.srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReplyQueuesCommand(t *testing.T) {
	s := newTestService(t)

	stdout, _, err := executeCLI(t, t.TempDir(), "reply", "42", "on my way", "10 min", "--card", "c1", "--api", s.srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "queued")
	assert.Equal(t, model.ReplyCommand{ConversationKey: "42", Texts: []string{"on my way", "10 min"}}, s.command(t))
}

func TestReplyReportsServerValidation(t *testing.T) {
	s := newTestService(t)

	_, _, err := executeCLI(t, t.TempDir(), "reply", "42", "", "--api", s.srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 400")
}

func TestMuteUnmute(t *testing.T) {
	s := newTestService(t)
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "mute", "7", "--api", s.srv.URL)
	require.NoError(t, err)
	assert.Equal(t, model.MuteCommand{ConversationKey: "7"}, s.command(t))

	require.NoError(t, s.st.Mutes().Add(context.Background(), "7"))
	stdout, _, err := executeCLI(t, home, "mutes", "--api", s.srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "7\n", stdout)

	stdout, _, err = executeCLI(t, home, "unmute", "7", "--api", s.srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "unmuted 7")

	stdout, _, err = executeCLI(t, home, "unmute", "7", "--api", s.srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "was not muted")
}

func TestEventQueuesCalendarCommand(t *testing.T) {
	s := newTestService(t)

	_, _, err := executeCLI(t, t.TempDir(), "event",
		"--title", "Dentist", "--at", "2026-05-04T09:00:00Z", "--duration", "30", "--type", "health",
		"--api", s.srv.URL)
	require.NoError(t, err)

	cmd, ok := s.command(t).(model.CalendarCommand)
	require.True(t, ok)
	assert.Equal(t, "Dentist", cmd.Title)
	assert.Equal(t, 30*time.Minute, cmd.Duration)
	assert.Equal(t, "health", cmd.Category)

	_, _, err = executeCLI(t, t.TempDir(), "event", "--title", "Dentist", "--api", s.srv.URL)
	require.Error(t, err, "--at is required")
}

func TestStreamPrintsEvents(t *testing.T) {
	s := newTestService(t)

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	home := t.TempDir()
	t.Setenv("HOME", home)
	go func() {
		root := newRootCmd()
		stdout := &bytes.Buffer{}
		root.SetOut(stdout)
		root.SetArgs([]string{"stream", "--count", "2", "--api", s.srv.URL})
		err := root.Execute()
		done <- result{stdout.String(), err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.broker.Len() == 0 {
		require.True(t, time.Now().Before(deadline), "stream never subscribed")
		time.Sleep(5 * time.Millisecond)
	}
	id := s.put(t, "9", "Bob")
	_, err := s.cards.Delete(context.Background(), id)
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Contains(t, r.out, "+ "+id+" [high] Bob")
		assert.Contains(t, r.out, "- "+id)
	case <-time.After(3 * time.Second):
		t.Fatalf("stream did not finish")
	}
}

func TestAPIFromConfigFile(t *testing.T) {
	s := newTestService(t)
	home := t.TempDir()
	dir := filepath.Join(home, configDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: "+s.srv.URL+"\n"), 0o644))

	stdout, _, err := executeCLI(t, home, "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "no pending cards")
}

func TestAPIFromEnvironment(t *testing.T) {
	s := newTestService(t)
	t.Setenv("HIDECTL_API", s.srv.URL)

	stdout, _, err := executeCLI(t, t.TempDir(), "mutes")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestFormatResyncEvent(t *testing.T) {
	evt := map[string]any{"action": "resync", "dropped": float64(3)}
	assert.Equal(t, "! 3 events lost, run 'hidectl list' to refresh", formatEvent(evt))
}
