package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hideapp/hide/internal/model"
)

// Telegram rejects longer messages.
const maxBubbleRunes = 4096

const (
	maxTitleRunes = 200
	maxBubbles    = 10
)

func NonEmpty(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return model.NewValidationError(field, "is required")
	}
	return nil
}

func MaxLen(field, v string, limit int) error {
	if utf8.RuneCountInString(v) > limit {
		return model.NewValidationError(field, fmt.Sprintf("exceeds %d characters", limit))
	}
	return nil
}

// ConversationKey requires a non-blank key without surrounding whitespace.
func ConversationKey(k model.ConversationKey) error {
	if !k.Valid() {
		return model.NewValidationError("conversation_key", "is required")
	}
	if strings.TrimSpace(string(k)) != string(k) {
		return model.NewValidationError("conversation_key", "must not have surrounding whitespace")
	}
	return nil
}

// Texts validates the ordered bubbles of a reply.
func Texts(texts []string) error {
	if len(texts) == 0 {
		return model.NewValidationError("text", "at least one message is required")
	}
	if len(texts) > maxBubbles {
		return model.NewValidationError("text", fmt.Sprintf("at most %d messages per reply", maxBubbles))
	}
	for i, t := range texts {
		field := fmt.Sprintf("text[%d]", i)
		if err := NonEmpty(field, t); err != nil {
			return err
		}
		if err := MaxLen(field, t, maxBubbleRunes); err != nil {
			return err
		}
	}
	return nil
}

func Sentiment(s model.Sentiment) error {
	switch s {
	case model.SentimentPositive, model.SentimentNegative, model.SentimentNeutral:
		return nil
	}
	return model.NewValidationError("meta.sentiment", "must be positive, negative or neutral")
}

func EventTitle(v string) error {
	if err := NonEmpty("title", v); err != nil {
		return err
	}
	return MaxLen("title", v, maxTitleRunes)
}

func Duration(minutes *int) error {
	if minutes != nil && (*minutes < 0 || *minutes > 7*24*60) {
		return model.NewValidationError("duration", "must be between 0 and 10080 minutes")
	}
	return nil
}
