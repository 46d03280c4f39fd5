package store

import (
	"encoding/json"
	"fmt"

	"github.com/hideapp/hide/internal/model"
)

// cardPayload is the serialized part of a card that SQL backends keep in a
// single document column. Indexed fields (id, key, created_at) are columns.
type cardPayload struct {
	model.CardContent
	History []string `json:"conversation_history,omitempty"`
}

// MarshalPayload encodes the document part of c.
func MarshalPayload(c *model.Card) ([]byte, error) {
	b, err := json.Marshal(cardPayload{CardContent: c.CardContent, History: c.ConversationHistory})
	if err != nil {
		return nil, fmt.Errorf("encode card %s: %w", c.ID, err)
	}
	return b, nil
}

// UnmarshalPayload decodes a document produced by MarshalPayload into c.
func UnmarshalPayload(b []byte, c *model.Card) error {
	var p cardPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("decode card %s: %w", c.ID, err)
	}
	c.CardContent = p.CardContent
	c.ConversationHistory = p.History
	return nil
}
