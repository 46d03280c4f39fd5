// Package messaging delivers operator replies to conversations.
package messaging

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/model"
)

// ErrConnection marks faults of the connection itself, as opposed to a
// rejection of one message. Callers abandon the rest of a batch on it.
var ErrConnection = errors.New("messaging connection fault")

// Client sends messages on behalf of the operator.
type Client interface {
	// SendTyping shows a typing indicator. Clients without one return nil.
	SendTyping(ctx context.Context, key model.ConversationKey) error
	SendMessage(ctx context.Context, key model.ConversationKey, text string) error
}

// IsConnectionError reports whether err is a connection-level fault.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// LogClient records messages in the log instead of sending them.
type LogClient struct {
	log zerolog.Logger
}

func NewLogClient(log zerolog.Logger) *LogClient {
	return &LogClient{log: log.With().Str("component", "messaging").Logger()}
}

func (c *LogClient) SendTyping(context.Context, model.ConversationKey) error { return nil }

func (c *LogClient) SendMessage(_ context.Context, key model.ConversationKey, text string) error {
	c.log.Info().Str("conversation_key", key.String()).Str("text", text).Msg("dry run: message not sent")
	return nil
}
