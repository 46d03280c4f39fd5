package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/events"
	"github.com/hideapp/hide/internal/model"
)

const (
	defaultKeepAlive = 15 * time.Second
	wsWriteWait      = 10 * time.Second
	wsReadLimit      = 4096
)

// StreamHandler pushes card lifecycle events to live clients. A client only
// receives events published after it connected.
type StreamHandler struct {
	broker    *events.Broker
	keepAlive time.Duration
	upgrader  websocket.Upgrader
}

func NewStreamHandler(b *events.Broker, keepAlive time.Duration) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &StreamHandler{
		broker:    b,
		keepAlive: keepAlive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the operator dashboard is served from other origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeSSE GET /api/stream
// Each event is one "data: <json>" frame; comment frames keep idle proxies open.
func (h *StreamHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	rc := http.NewResponseController(w)

	sub := h.broker.Subscribe()
	defer sub.Close()

	// the server WriteTimeout would otherwise cut long-lived streams
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.Warn().Err(err).Msg("stream flush unsupported")
		return
	}
	log.Debug().Msg("sse client connected")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			log.Debug().Uint64("dropped", sub.Dropped()).Msg("sse client disconnected")
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if marker, gap := sub.TakeResync(); gap {
				log.Debug().Uint64("dropped", marker.Dropped).Msg("sse client lagging, sending resync")
				if err := writeSSE(w, marker); err != nil {
					return
				}
			}
			if err := writeSSE(w, evt); err != nil {
				log.Error().Err(err).Str("card_id", evt.CardID).Msg("failed to write event")
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// ServeWebSocket GET /api/stream/ws
// Events are sent as JSON text frames. Inbound frames are read and discarded
// so that pongs and close frames are processed.
func (h *StreamHandler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.broker.Subscribe()
	defer sub.Close()

	pongWait := 2*h.keepAlive + wsWriteWait
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()
	for {
		select {
		case <-done:
			log.Debug().Uint64("dropped", sub.Dropped()).Msg("websocket client disconnected")
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if marker, gap := sub.TakeResync(); gap {
				log.Debug().Uint64("dropped", marker.Dropped).Msg("websocket client lagging, sending resync")
				if err := conn.WriteJSON(marker); err != nil {
					return
				}
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// writeSSE writes evt as one "data:" frame.
func writeSSE(w io.Writer, evt model.LifecycleEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
