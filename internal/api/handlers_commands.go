package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	respond "github.com/hideapp/hide/internal/api/respond"
	"github.com/hideapp/hide/internal/api/validate"
	"github.com/hideapp/hide/internal/commands"
	"github.com/hideapp/hide/internal/model"
)

const maxCommandBody = 64 << 10

// CommandHandler validates operator commands and enqueues them for the executor.
// A 202 only means the command was queued; execution is asynchronous.
type CommandHandler struct {
	codec *commands.Codec
	queue CommandPublisher
	cards CardRemover
}

// CardRemover deletes a card by id; a missing card is not an error.
type CardRemover interface {
	Delete(ctx context.Context, id string) (bool, error)
}

func NewCommandHandler(codec *commands.Codec, queue CommandPublisher, cards CardRemover) *CommandHandler {
	return &CommandHandler{codec: codec, queue: queue, cards: cards}
}

// replyMeta describes which suggestion the operator picked. It is logged for
// later tuning and never reaches the executor.
type replyMeta struct {
	Label     string          `json:"label"`
	Sentiment model.Sentiment `json:"sentiment"`
	IsCustom  bool            `json:"is_custom"`
}

type replyRequest struct {
	ConversationKey json.RawMessage `json:"conversation_key,omitempty"`
	ChatID          json.RawMessage `json:"chat_id,omitempty"`
	Text            json.RawMessage `json:"text"`
	CardID          string          `json:"card_id,omitempty"`
	Meta            *replyMeta      `json:"meta,omitempty"`
}

type muteRequest struct {
	ConversationKey json.RawMessage `json:"conversation_key,omitempty"`
	ChatID          json.RawMessage `json:"chat_id,omitempty"`
}

type addEventRequest struct {
	Title          string `json:"title"`
	DateTime       string `json:"datetime"`
	Duration       *int   `json:"duration,omitempty"`
	EventType      string `json:"event_type,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	CardID         string `json:"card_id,omitempty"`
}

// Reply POST /api/reply
func (h *CommandHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Meta != nil && req.Meta.Sentiment != "" {
		if err := validate.Sentiment(req.Meta.Sentiment); err != nil {
			respond.WriteDomainError(w, r, err)
			return
		}
	}

	cmd, ok := h.decode(w, r, struct {
		Action          model.CommandAction `json:"action"`
		ConversationKey json.RawMessage     `json:"conversation_key,omitempty"`
		ChatID          json.RawMessage     `json:"chat_id,omitempty"`
		Text            json.RawMessage     `json:"text,omitempty"`
	}{model.CommandReply, req.ConversationKey, req.ChatID, req.Text})
	if !ok {
		return
	}
	reply := cmd.(model.ReplyCommand)
	if err := validate.ConversationKey(reply.ConversationKey); err != nil {
		respond.WriteDomainError(w, r, err)
		return
	}
	if err := validate.Texts(reply.Texts); err != nil {
		respond.WriteDomainError(w, r, err)
		return
	}

	if req.Meta != nil {
		zerolog.Ctx(r.Context()).Info().
			Str("conversation_key", reply.ConversationKey.String()).
			Str("card_id", req.CardID).
			Str("label", req.Meta.Label).
			Str("sentiment", string(req.Meta.Sentiment)).
			Bool("is_custom", req.Meta.IsCustom).
			Int("bubbles", len(reply.Texts)).
			Msg("reply selected")
	}
	h.enqueue(w, r, reply)
}

// Mute POST /api/mute
func (h *CommandHandler) Mute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cmd, ok := h.decode(w, r, struct {
		Action          model.CommandAction `json:"action"`
		ConversationKey json.RawMessage     `json:"conversation_key,omitempty"`
		ChatID          json.RawMessage     `json:"chat_id,omitempty"`
	}{model.CommandMute, req.ConversationKey, req.ChatID})
	if !ok {
		return
	}
	mute := cmd.(model.MuteCommand)
	if err := validate.ConversationKey(mute.ConversationKey); err != nil {
		respond.WriteDomainError(w, r, err)
		return
	}
	h.enqueue(w, r, mute)
}

// AddEvent POST /api/add_event
// Without an idempotency_key the card id, when given, is used as one.
func (h *CommandHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	var req addEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validate.EventTitle(req.Title); err != nil {
		respond.WriteDomainError(w, r, err)
		return
	}
	if err := validate.Duration(req.Duration); err != nil {
		respond.WriteDomainError(w, r, err)
		return
	}
	key := req.IdempotencyKey
	if key == "" && req.CardID != "" {
		key = "card:" + req.CardID
	}
	cmd, ok := h.decode(w, r, struct {
		Action         model.CommandAction `json:"action"`
		Title          string              `json:"title"`
		DateTime       string              `json:"datetime"`
		Duration       *int                `json:"duration,omitempty"`
		EventType      string              `json:"event_type,omitempty"`
		IdempotencyKey string              `json:"idempotency_key,omitempty"`
	}{model.CommandCalendar, req.Title, req.DateTime, req.Duration, req.EventType, key})
	if !ok {
		return
	}
	if !h.publish(w, r, cmd) {
		return
	}

	// the card the event was taken from is done once the event is queued
	removed := false
	if req.CardID != "" {
		var err error
		if removed, err = h.cards.Delete(r.Context(), req.CardID); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("card_id", req.CardID).Msg("failed to remove card after add_event")
		}
	}
	respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":       "queued",
		"action":       cmd.Action(),
		"card_removed": removed,
	})
}

// decode runs the request through the command codec so only commands the
// executor accepts are queued.
func (h *CommandHandler) decode(w http.ResponseWriter, r *http.Request, wire any) (model.Command, bool) {
	raw, err := json.Marshal(wire)
	if err != nil {
		respond.WriteInternalError(w, r, err)
		return nil, false
	}
	cmd, err := h.codec.Decode(raw)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return nil, false
	}
	return cmd, true
}

func (h *CommandHandler) enqueue(w http.ResponseWriter, r *http.Request, cmd model.Command) {
	if !h.publish(w, r, cmd) {
		return
	}
	respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "queued",
		"action": cmd.Action(),
	})
}

// publish queues cmd and reports whether it was accepted. On failure the
// error response has already been written.
func (h *CommandHandler) publish(w http.ResponseWriter, r *http.Request, cmd model.Command) bool {
	raw, err := h.codec.Encode(cmd)
	if err != nil {
		respond.WriteInternalError(w, r, err)
		return false
	}
	if err := h.queue.Publish(r.Context(), raw); err != nil {
		if errors.Is(err, commands.ErrQueueFull) || errors.Is(err, commands.ErrQueueClosed) {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("action", string(cmd.Action())).Msg("command rejected")
			respond.WriteUnavailable(w, err.Error())
			return false
		}
		respond.WriteInternalError(w, r, err)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxCommandBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return false
	}
	return true
}
