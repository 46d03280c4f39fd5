// Package calendar forwards calendar requests to an external calendar.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Event is a calendar entry to create.
type Event struct {
	Title    string
	Start    time.Time
	Duration time.Duration
	Category string
}

// End returns Start plus Duration.
func (e Event) End() time.Time { return e.Start.Add(e.Duration) }

// Sink creates calendar events.
type Sink interface {
	AddEvent(ctx context.Context, ev Event) error
}

// WebhookSink posts events as JSON to a calendar bridge.
type WebhookSink struct {
	client       *resty.Client
	url          string
	loc          *time.Location
	alertMinutes int
}

type webhookPayload struct {
	Title        string `json:"title"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Duration     int    `json:"duration_minutes"`
	Calendar     string `json:"calendar,omitempty"`
	TimeZone     string `json:"time_zone"`
	AlertMinutes int    `json:"alert_minutes_before,omitempty"`
}

// NewWebhookSink targets url. Event times are rendered in loc with an alert
// alertMinutes before the start (0 disables the alert).
func NewWebhookSink(url string, loc *time.Location, alertMinutes int, timeout time.Duration) *WebhookSink {
	if loc == nil {
		loc = time.UTC
	}
	c := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &WebhookSink{client: c, url: url, loc: loc, alertMinutes: alertMinutes}
}

func (s *WebhookSink) AddEvent(ctx context.Context, ev Event) error {
	body := webhookPayload{
		Title:        ev.Title,
		Start:        ev.Start.In(s.loc).Format(time.RFC3339),
		End:          ev.End().In(s.loc).Format(time.RFC3339),
		Duration:     int(ev.Duration / time.Minute),
		Calendar:     ev.Category,
		TimeZone:     s.loc.String(),
		AlertMinutes: s.alertMinutes,
	}
	resp, err := s.client.R().SetContext(ctx).SetBody(&body).Post(s.url)
	if err != nil {
		return fmt.Errorf("calendar webhook request: %w", err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("calendar webhook status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// LogSink records events in the log instead of creating them.
type LogSink struct {
	log zerolog.Logger
	loc *time.Location
}

func NewLogSink(log zerolog.Logger, loc *time.Location) *LogSink {
	if loc == nil {
		loc = time.UTC
	}
	return &LogSink{log: log.With().Str("component", "calendar").Logger(), loc: loc}
}

func (s *LogSink) AddEvent(_ context.Context, ev Event) error {
	s.log.Info().
		Str("title", ev.Title).
		Str("start", ev.Start.In(s.loc).Format(time.RFC3339)).
		Dur("duration", ev.Duration).
		Str("calendar", ev.Category).
		Msg("dry run: calendar event not created")
	return nil
}
