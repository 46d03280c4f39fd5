package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/hideapp/hide/internal/api/respond"
	"github.com/hideapp/hide/internal/cards"
	"github.com/hideapp/hide/internal/model"
)

// NotificationHandler serves the card store.
type NotificationHandler struct {
	svc *cards.Service
}

func NewNotificationHandler(svc *cards.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// ListNotifications GET /api/notifications
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListAll(r.Context())
	if err != nil {
		respond.WriteInternalError(w, r, err)
		return
	}
	if out == nil {
		out = []*model.Card{}
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// GetNotification GET /api/notifications/{id}
func (h *NotificationHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.WriteDomainError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, c)
}

// DeleteNotification DELETE /api/notifications/{id}
// Deleting an unknown id answers 404 with deleted=false.
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		respond.WriteInternalError(w, r, err)
		return
	}
	status := http.StatusOK
	if !deleted {
		status = http.StatusNotFound
	}
	respond.WriteJSON(w, status, map[string]bool{"deleted": deleted})
}
