// Package ingest turns inbound conversation messages into cards.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/cards"
	"github.com/hideapp/hide/internal/debounce"
	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
	"github.com/hideapp/hide/internal/summarizer"
)

// ChatKind classifies the conversation a message arrived in.
type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
	ChatChannel ChatKind = "channel"
)

const unknownName = "Unknown"

// Message is one inbound (or operator-sent) message of a conversation.
type Message struct {
	ConversationKey model.ConversationKey `json:"conversation_key"`
	SenderName      string                `json:"sender_name"`
	Text            string                `json:"text"`
	Outgoing        bool                  `json:"outgoing"`
	Kind            ChatKind              `json:"kind"`
	ChatTitle       string                `json:"chat_title,omitempty"`
	SentAt          time.Time             `json:"sent_at"`
}

// Debouncer is the scheduling side of debounce.Coalescer.
type Debouncer interface {
	Arm(key string, delay time.Duration, fn debounce.Callback) bool
	Cancel(key string) bool
}

// CardPutter stores a card as the active card of its conversation unless the
// conversation is muted, in which case it returns cards.ErrMuted.
type CardPutter interface {
	PutUnlessMuted(ctx context.Context, card *model.Card) (string, string, error)
}

// Config tunes the pipeline. MaxConversations bounds how many conversations
// keep a history; the least recently active one is forgotten first.
type Config struct {
	Delay            time.Duration
	HistoryLimit     int
	MaxConversations int
	OmitGroups       bool
}

// Pipeline records conversation history and, once a conversation has been
// quiet for Config.Delay, summarizes it into a card.
type Pipeline struct {
	deb   Debouncer
	sum   summarizer.Summarizer
	cards CardPutter
	mutes store.Mutes
	cfg   Config
	log   zerolog.Logger

	mu      sync.Mutex
	history *lru.Cache[model.ConversationKey, []Message]
}

func New(deb Debouncer, sum summarizer.Summarizer, cards CardPutter, mutes store.Mutes, cfg Config, log zerolog.Logger) *Pipeline {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.MaxConversations <= 0 {
		cfg.MaxConversations = 1000
	}
	// only fails on a non-positive size
	history, _ := lru.New[model.ConversationKey, []Message](cfg.MaxConversations)
	return &Pipeline{
		deb:     deb,
		sum:     sum,
		cards:   cards,
		mutes:   mutes,
		cfg:     cfg,
		log:     log.With().Str("component", "ingest").Logger(),
		history: history,
	}
}

// Ingest records msg and (re)arms the conversation's trigger. It reports
// whether a trigger was armed; filtered messages are not an error.
func (p *Pipeline) Ingest(ctx context.Context, msg Message) (bool, error) {
	if !msg.ConversationKey.Valid() {
		return false, model.NewValidationError("conversation_key", "is required")
	}
	if msg.Kind == "" {
		msg.Kind = ChatPrivate
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	if msg.Kind == ChatChannel {
		return false, nil
	}
	if p.cfg.OmitGroups && msg.Kind != ChatPrivate {
		return false, nil
	}

	p.record(msg)
	if msg.Outgoing {
		return false, nil
	}

	muted, err := p.mutes.Contains(ctx, msg.ConversationKey)
	if err != nil {
		return false, fmt.Errorf("check mute: %w", err)
	}
	if muted {
		p.log.Debug().Str("conversation_key", msg.ConversationKey.String()).Msg("skipping muted conversation")
		return false, nil
	}

	key, title := msg.ConversationKey, titleOf(msg)
	armed := p.deb.Arm(key.String(), p.cfg.Delay, func(ctx context.Context) error {
		return p.process(ctx, key, title)
	})
	return armed, nil
}

// Cancel drops the pending trigger of key, if any.
func (p *Pipeline) Cancel(key model.ConversationKey) {
	if p.deb.Cancel(key.String()) {
		p.log.Debug().Str("conversation_key", key.String()).Msg("pending trigger cancelled")
	}
}

// History returns the recorded messages of key, oldest first.
func (p *Pipeline) History(key model.ConversationKey) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, _ := p.history.Peek(key)
	return append([]Message(nil), h...)
}

func (p *Pipeline) record(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, _ := p.history.Get(msg.ConversationKey)
	h := append(append([]Message(nil), prev...), msg)
	if over := len(h) - p.cfg.HistoryLimit; over > 0 {
		h = h[over:]
	}
	p.history.Add(msg.ConversationKey, h)
}

// process runs when the conversation has been quiet long enough.
func (p *Pipeline) process(ctx context.Context, key model.ConversationKey, title string) error {
	log := p.log.With().Str("conversation_key", key.String()).Logger()

	muted, err := p.mutes.Contains(ctx, key)
	if err != nil {
		return fmt.Errorf("check mute: %w", err)
	}
	if muted {
		log.Debug().Msg("conversation muted before trigger fired")
		return nil
	}

	history := p.History(key)
	if len(history) == 0 {
		log.Debug().Msg("no history recorded")
		return nil
	}
	if history[len(history)-1].Outgoing {
		log.Debug().Msg("last message was sent by the operator")
		return nil
	}

	lines := transcript(history)
	if len(lines) == 0 {
		return nil
	}
	content, err := p.sum.Summarize(ctx, title, lines)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", key, err)
	}

	id, superseded, err := p.cards.PutUnlessMuted(ctx, &model.Card{
		ConversationKey:     key,
		Title:               title,
		CardContent:         content,
		ConversationHistory: lines,
	})
	if errors.Is(err, cards.ErrMuted) {
		log.Debug().Msg("conversation muted while summarizing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("store card for %s: %w", key, err)
	}
	log.Info().Str("card_id", id).Str("superseded_id", superseded).Int("lines", len(lines)).Msg("card produced")
	return nil
}

func titleOf(msg Message) string {
	name := msg.SenderName
	if msg.Kind == ChatGroup {
		name = msg.ChatTitle
	}
	if strings.TrimSpace(name) == "" {
		return unknownName
	}
	return name
}

// transcript renders "Name: text" lines, oldest first; the operator is "Me".
func transcript(history []Message) []string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		name := m.SenderName
		switch {
		case m.Outgoing:
			name = "Me"
		case strings.TrimSpace(name) == "":
			name = unknownName
		}
		lines = append(lines, name+": "+m.Text)
	}
	return lines
}
