package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSinkPostsEventInLocation(t *testing.T) {
	var got webhookPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	sgt, err := time.LoadLocation("Asia/Singapore")
	require.NoError(t, err)
	sink := NewWebhookSink(ts.URL, sgt, 30, time.Second)

	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, sink.AddEvent(context.Background(), Event{Title: "Lunch", Start: start, Duration: 90 * time.Minute, Category: "Work"}))

	assert.Equal(t, "Lunch", got.Title)
	assert.Equal(t, "2026-03-01T14:00:00+08:00", got.Start)
	assert.Equal(t, "2026-03-01T15:30:00+08:00", got.End)
	assert.Equal(t, 90, got.Duration)
	assert.Equal(t, "Work", got.Calendar)
	assert.Equal(t, "Asia/Singapore", got.TimeZone)
	assert.Equal(t, 30, got.AlertMinutes)
}

func TestWebhookSinkReportsFailureStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "calendar locked", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := NewWebhookSink(ts.URL, nil, 0, time.Second).AddEvent(context.Background(), Event{Title: "x", Start: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestLogSink(t *testing.T) {
	require.NoError(t, NewLogSink(zerolog.Nop(), nil).AddEvent(context.Background(), Event{Title: "x"}))
}
