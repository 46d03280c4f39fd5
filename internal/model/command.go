package model

import "time"

// CommandAction is the wire discriminator of a Command.
type CommandAction string

const (
	CommandReply    CommandAction = "reply"
	CommandMute     CommandAction = "mute"
	CommandCalendar CommandAction = "calendar"
)

// Command is the closed set of operator commands consumed by the executor.
// Implementations are ReplyCommand, MuteCommand and CalendarCommand.
type Command interface {
	Action() CommandAction
	isCommand()
}

// ReplyCommand sends Texts, in order, to the conversation.
type ReplyCommand struct {
	ConversationKey ConversationKey
	Texts           []string
}

// MuteCommand suppresses new cards for the conversation.
type MuteCommand struct {
	ConversationKey ConversationKey
}

// CalendarCommand forwards an event to the calendar sink.
// IdempotencyKey is optional; when set, repeated deliveries are suppressed.
type CalendarCommand struct {
	Title          string
	Start          time.Time
	Duration       time.Duration
	Category       string
	IdempotencyKey string
}

func (ReplyCommand) Action() CommandAction    { return CommandReply }
func (MuteCommand) Action() CommandAction     { return CommandMute }
func (CalendarCommand) Action() CommandAction { return CommandCalendar }

func (ReplyCommand) isCommand()    {}
func (MuteCommand) isCommand()     {}
func (CalendarCommand) isCommand() {}
