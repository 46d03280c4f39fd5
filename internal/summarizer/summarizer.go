// Package summarizer turns a conversation transcript into card content.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hideapp/hide/internal/model"
)

// Summarizer produces the content of a card from transcript lines ("Name: text").
type Summarizer interface {
	Summarize(ctx context.Context, title string, transcript []string) (model.CardContent, error)
}

// HTTP calls a remote summarization endpoint.
type HTTP struct {
	client *resty.Client
	url    string
}

type summarizeRequest struct {
	Title        string   `json:"title"`
	Transcript   []string `json:"transcript"`
	Conversation string   `json:"full_conversation"`
}

func NewHTTP(url string, timeout time.Duration) *HTTP {
	c := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &HTTP{client: c, url: url}
}

func (h *HTTP) Summarize(ctx context.Context, title string, transcript []string) (model.CardContent, error) {
	body := summarizeRequest{Title: title, Transcript: transcript, Conversation: strings.Join(transcript, "\n")}
	resp, err := h.client.R().SetContext(ctx).SetBody(&body).Post(h.url)
	if err != nil {
		return model.CardContent{}, fmt.Errorf("summarizer request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return model.CardContent{}, fmt.Errorf("summarizer status %d: %s", resp.StatusCode(), resp.String())
	}
	var out model.CardContent
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return model.CardContent{}, fmt.Errorf("decode summarizer response: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return model.CardContent{}, fmt.Errorf("summarizer returned an empty summary")
	}
	out.Normalize()
	return out, nil
}

// Echo is an offline summarizer: the summary is the latest line of the transcript.
type Echo struct{}

func (Echo) Summarize(_ context.Context, _ string, transcript []string) (model.CardContent, error) {
	content := model.CardContent{Urgency: model.UrgencyLow, SuggestedAction: model.ActionReply}
	if n := len(transcript); n > 0 {
		content.Summary = transcript[n-1]
	}
	content.Normalize()
	return content, nil
}
