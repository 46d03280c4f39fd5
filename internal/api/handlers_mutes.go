package api

import (
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/hideapp/hide/internal/api/respond"
	"github.com/hideapp/hide/internal/api/validate"
	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
)

// MuteHandler lists and lifts mutes. Muting goes through the command queue.
type MuteHandler struct {
	mutes store.Mutes
}

func NewMuteHandler(m store.Mutes) *MuteHandler { return &MuteHandler{mutes: m} }

// ListMutes GET /api/mutes
func (h *MuteHandler) ListMutes(w http.ResponseWriter, r *http.Request) {
	keys, err := h.mutes.List(r.Context())
	if err != nil {
		respond.WriteInternalError(w, r, err)
		return
	}
	if keys == nil {
		keys = []model.ConversationKey{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"mutes": keys, "count": len(keys)})
}

// Unmute DELETE /api/mutes/{key}
func (h *MuteHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	key := model.ConversationKey(mux.Vars(r)["key"])
	if err := validate.ConversationKey(key); err != nil {
		respond.WriteDomainError(w, r, err)
		return
	}
	removed, err := h.mutes.Remove(r.Context(), key)
	if err != nil {
		respond.WriteInternalError(w, r, err)
		return
	}
	status := http.StatusOK
	if !removed {
		status = http.StatusNotFound
	}
	respond.WriteJSON(w, status, map[string]bool{"unmuted": removed})
}
