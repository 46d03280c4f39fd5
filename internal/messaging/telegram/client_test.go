package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hideapp/hide/internal/messaging"
)

func TestSendMessage(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "test-token", time.Second)
	require.NoError(t, c.SendMessage(context.Background(), "456", "hello"))
	assert.Equal(t, "456", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
}

func TestSendTypingAndHealthPing(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "t", time.Second)
	require.NoError(t, c.SendTyping(context.Background(), "1"))
	require.NoError(t, c.HealthPing(context.Background()))
	assert.Equal(t, []string{"POST /bott/sendChatAction", "GET /bott/getMe"}, paths)
}

func TestAPIErrorIsNotConnectionFault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer ts.Close()

	err := New(ts.URL, "t", time.Second).SendMessage(context.Background(), "1", "x")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.True(t, strings.Contains(apiErr.Description, "chat not found"))
	assert.False(t, messaging.IsConnectionError(err))
}

func TestUnreachableServerIsConnectionFault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	err := New(url, "t", time.Second).SendMessage(context.Background(), "1", "x")
	require.Error(t, err)
	assert.True(t, messaging.IsConnectionError(err))
}
