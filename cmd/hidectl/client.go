package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiError is the error body written by the service.
type apiError struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiClient struct {
	http *resty.Client
	// streams are long-lived and must not inherit the request timeout
	streamHTTP *resty.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	base := strings.TrimRight(baseURL, "/")
	c := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "hidectl")
	s := resty.New().
		SetBaseURL(base).
		SetHeader("User-Agent", "hidectl")
	return &apiClient{http: c, streamHTTP: s}
}

// call performs a request and decodes a JSON response into out when non-nil.
// Statuses outside want are returned as errors carrying the server message.
func (c *apiClient) call(ctx context.Context, method, path string, body, out any, want ...int) (int, error) {
	req := c.http.R().SetContext(ctx).SetError(&apiError{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	for _, code := range want {
		if resp.StatusCode() == code {
			return code, nil
		}
	}
	if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
		return resp.StatusCode(), fmt.Errorf("http %d: %s", resp.StatusCode(), e.Message)
	}
	return resp.StatusCode(), fmt.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
}

// stream copies each SSE data payload to out until ctx ends, the server
// closes the stream or limit events were written (limit <= 0 means no limit).
func (c *apiClient) stream(ctx context.Context, out io.Writer, limit int) error {
	resp, err := c.streamHTTP.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Get("/api/stream")
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("open stream: http %d", resp.StatusCode())
	}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	n := 0
	for sc.Scan() {
		line := sc.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var evt map[string]any
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fmt.Fprintln(out, formatEvent(evt))
		n++
		if limit > 0 && n >= limit {
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

func formatEvent(evt map[string]any) string {
	switch evt["action"] {
	case "create":
		return fmt.Sprintf("+ %v [%v] %v: %v", evt["id"], evt["urgency"], evt["title"], evt["summary"])
	case "delete":
		return fmt.Sprintf("- %v", evt["id"])
	case "resync":
		return fmt.Sprintf("! %v events lost, run 'hidectl list' to refresh", evt["dropped"])
	}
	b, _ := json.Marshal(evt)
	return string(b)
}
