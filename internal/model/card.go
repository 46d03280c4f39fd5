package model

import (
	"strings"
	"time"
)

// ConversationKey identifies a conversation (for Telegram, the chat id).
// It is the coalescing key and the key of the active-card index.
type ConversationKey string

func (k ConversationKey) String() string { return string(k) }

// Valid reports whether k is non-empty after trimming.
func (k ConversationKey) Valid() bool { return strings.TrimSpace(string(k)) != "" }

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

type SuggestedAction string

const (
	ActionIgnore        SuggestedAction = "ignore"
	ActionReply         SuggestedAction = "reply"
	ActionCalendarEvent SuggestedAction = "calendar_event"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// ReplyOption is one suggested answer. Text holds 1-3 bubbles sent in order.
type ReplyOption struct {
	Label     string    `json:"label"`
	Text      []string  `json:"text"`
	Sentiment Sentiment `json:"sentiment"`
}

// CalendarDetails is an event the summarizer extracted from the conversation.
type CalendarDetails struct {
	Title     string  `json:"title"`
	DateTime  *string `json:"datetime,omitempty"`
	Duration  *int    `json:"duration,omitempty"`
	EventType string  `json:"event_type"`
}

// CardContent is the structured payload produced by the summarizer.
type CardContent struct {
	Summary          string           `json:"summary"`
	Urgency          Urgency          `json:"urgency"`
	SuggestedAction  SuggestedAction  `json:"suggested_action,omitempty"`
	ReplyOptions     []ReplyOption    `json:"reply_options"`
	AutoReplyAllowed bool             `json:"auto_reply_allowed"`
	CalendarDetails  *CalendarDetails `json:"calendar_details,omitempty"`
}

// Normalize fills defaults the summarizer may have left out.
func (c *CardContent) Normalize() {
	if !c.Urgency.Valid() {
		c.Urgency = UrgencyLow
	}
	if c.ReplyOptions == nil {
		c.ReplyOptions = []ReplyOption{}
	}
}

// Card is a notification awaiting operator resolution.
type Card struct {
	ID              string          `json:"id"`
	ConversationKey ConversationKey `json:"conversation_key"`
	Title           string          `json:"title"`
	CardContent
	ConversationHistory []string  `json:"conversation_history,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Clone returns a deep copy so stored cards cannot be mutated by callers.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	out := *c
	if c.ReplyOptions != nil {
		out.ReplyOptions = make([]ReplyOption, len(c.ReplyOptions))
		for i, o := range c.ReplyOptions {
			o.Text = append([]string(nil), o.Text...)
			out.ReplyOptions[i] = o
		}
	}
	if c.CalendarDetails != nil {
		cd := *c.CalendarDetails
		out.CalendarDetails = &cd
	}
	out.ConversationHistory = append([]string(nil), c.ConversationHistory...)
	return &out
}

// NewerFirst orders cards by CreatedAt descending, ties broken by ID ascending.
func NewerFirst(a, b *Card) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
