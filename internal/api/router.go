// Package api exposes cards, live events and operator commands over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/api/middleware"
	"github.com/hideapp/hide/internal/api/recovery"
	"github.com/hideapp/hide/internal/cards"
	"github.com/hideapp/hide/internal/commands"
	"github.com/hideapp/hide/internal/events"
	"github.com/hideapp/hide/internal/ingest"
	"github.com/hideapp/hide/internal/store"
)

// CommandPublisher enqueues encoded commands for the executor.
type CommandPublisher interface {
	Publish(ctx context.Context, raw []byte) error
}

// Ingester accepts inbound conversation messages.
type Ingester interface {
	Ingest(ctx context.Context, msg ingest.Message) (bool, error)
}

// ServiceHealth reports aggregate and per-component health.
type ServiceHealth interface {
	IsHealthy() bool
	Components() map[string]bool
}

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Cards     *cards.Service
	Broker    *events.Broker
	Codec     *commands.Codec
	Commands  CommandPublisher
	Mutes     store.Mutes
	Ingest    Ingester
	Health    ServiceHealth
	KeepAlive time.Duration
	Log       zerolog.Logger
}

// NewRouter wires every route under /api.
func NewRouter(d Deps) *mux.Router {
	root := mux.NewRouter()
	root.Use(middleware.RequestID(d.Log))
	root.Use(middleware.AccessLog)
	root.Use(recovery.Middleware)

	r := root.PathPrefix("/api").Subrouter()

	// Health
	healthHandler := NewHealthHandler(d.Health)
	r.HandleFunc("/health", healthHandler.CheckHealth).Methods("GET")

	// Notifications
	notif := NewNotificationHandler(d.Cards)
	r.HandleFunc("/notifications", notif.ListNotifications).Methods("GET")
	r.HandleFunc("/notifications/{id}", notif.GetNotification).Methods("GET")
	r.HandleFunc("/notifications/{id}", notif.DeleteNotification).Methods("DELETE")

	// Live stream
	stream := NewStreamHandler(d.Broker, d.KeepAlive)
	r.HandleFunc("/stream", stream.ServeSSE).Methods("GET")
	r.HandleFunc("/stream/ws", stream.ServeWebSocket).Methods("GET")

	// Commands
	cmd := NewCommandHandler(d.Codec, d.Commands, d.Cards)
	r.HandleFunc("/reply", cmd.Reply).Methods("POST")
	r.HandleFunc("/mute", cmd.Mute).Methods("POST")
	r.HandleFunc("/add_event", cmd.AddEvent).Methods("POST")

	// Mutes
	mutes := NewMuteHandler(d.Mutes)
	r.HandleFunc("/mutes", mutes.ListMutes).Methods("GET")
	r.HandleFunc("/mutes/{key}", mutes.Unmute).Methods("DELETE")

	// Inbound messages
	if d.Ingest != nil {
		inbound := NewInboundHandler(d.Ingest)
		r.HandleFunc("/inbound", inbound.Receive).Methods("POST")
	}

	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Not Found","code":404}`, http.StatusNotFound)
	})
	return root
}
