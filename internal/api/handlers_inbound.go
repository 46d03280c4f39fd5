package api

import (
	"net/http"

	respond "github.com/hideapp/hide/internal/api/respond"
	"github.com/hideapp/hide/internal/ingest"
)

// InboundHandler receives conversation messages from the chat bridge.
type InboundHandler struct {
	ing Ingester
}

func NewInboundHandler(ing Ingester) *InboundHandler { return &InboundHandler{ing: ing} }

// Receive POST /api/inbound
// armed reports whether the message (re)started the conversation's debounce.
func (h *InboundHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var msg ingest.Message
	if !decodeBody(w, r, &msg) {
		return
	}
	armed, err := h.ing.Ingest(r.Context(), msg)
	if err != nil {
		respond.WriteDomainError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusAccepted, map[string]bool{"armed": armed})
}
