package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hideapp/hide/internal/model"
)

var (
	ErrUnknownAction    = errors.New("unknown command action")
	ErrMalformedCommand = errors.New("malformed command")
)

// DefaultEventDuration applies when a calendar command omits duration.
const DefaultEventDuration = 60 * time.Minute

const commandSchema = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"enum": ["reply", "mute", "calendar"]},
    "conversation_key": {"type": ["string", "integer"], "minLength": 1},
    "chat_id": {"type": ["string", "integer"], "minLength": 1},
    "text": {
      "oneOf": [
        {"type": "string", "minLength": 1},
        {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
      ]
    },
    "title": {"type": "string", "minLength": 1},
    "datetime": {"type": "string", "minLength": 1},
    "duration": {"type": "integer", "minimum": 0},
    "event_type": {"type": "string"},
    "idempotency_key": {"type": "string"}
  },
  "allOf": [
    {
      "if": {"properties": {"action": {"const": "reply"}}},
      "then": {
        "required": ["text"],
        "anyOf": [{"required": ["conversation_key"]}, {"required": ["chat_id"]}]
      }
    },
    {
      "if": {"properties": {"action": {"const": "mute"}}},
      "then": {"anyOf": [{"required": ["conversation_key"]}, {"required": ["chat_id"]}]}
    },
    {
      "if": {"properties": {"action": {"const": "calendar"}}},
      "then": {"required": ["title", "datetime"]}
    }
  ]
}`

// zone-less layouts are interpreted in the codec's location
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// wireCommand is the JSON shape exchanged with command producers.
type wireCommand struct {
	Action          model.CommandAction `json:"action"`
	ConversationKey json.RawMessage     `json:"conversation_key,omitempty"`
	ChatID          json.RawMessage     `json:"chat_id,omitempty"`
	Text            json.RawMessage     `json:"text,omitempty"`
	Title           string              `json:"title,omitempty"`
	DateTime        string              `json:"datetime,omitempty"`
	Duration        *int                `json:"duration,omitempty"`
	EventType       string              `json:"event_type,omitempty"`
	IdempotencyKey  string              `json:"idempotency_key,omitempty"`
}

// Codec converts between the command wire format and model.Command.
type Codec struct {
	schema *jsonschema.Schema
	loc    *time.Location
}

// NewCodec compiles the command schema. Zone-less calendar datetimes are read in loc.
func NewCodec(loc *time.Location) (*Codec, error) {
	if loc == nil {
		loc = time.UTC
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(commandSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid command schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("command.json", doc); err != nil {
		return nil, fmt.Errorf("invalid command schema: %w", err)
	}
	schema, err := compiler.Compile("command.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile command schema: %w", err)
	}
	return &Codec{schema: schema, loc: loc}, nil
}

// Decode validates raw and returns the matching command variant.
// Unknown actions wrap ErrUnknownAction; every other rejection wraps ErrMalformedCommand.
func (c *Codec) Decode(raw []byte) (model.Command, error) {
	var head struct {
		Action model.CommandAction `json:"action"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	switch head.Action {
	case model.CommandReply, model.CommandMute, model.CommandCalendar:
	case "":
		return nil, fmt.Errorf("%w: action is required", ErrMalformedCommand)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Action)
	}

	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if err := c.schema.Validate(value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	var w wireCommand
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	switch w.Action {
	case model.CommandReply:
		key, err := w.key()
		if err != nil {
			return nil, err
		}
		texts, err := decodeTexts(w.Text)
		if err != nil {
			return nil, err
		}
		return model.ReplyCommand{ConversationKey: key, Texts: texts}, nil
	case model.CommandMute:
		key, err := w.key()
		if err != nil {
			return nil, err
		}
		return model.MuteCommand{ConversationKey: key}, nil
	case model.CommandCalendar:
		start, err := c.parseTime(w.DateTime)
		if err != nil {
			return nil, err
		}
		dur := DefaultEventDuration
		if w.Duration != nil {
			dur = time.Duration(*w.Duration) * time.Minute
		}
		return model.CalendarCommand{
			Title:          w.Title,
			Start:          start,
			Duration:       dur,
			Category:       w.EventType,
			IdempotencyKey: w.IdempotencyKey,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, w.Action)
}

// Encode renders cmd in the wire format accepted by Decode.
func (c *Codec) Encode(cmd model.Command) ([]byte, error) {
	w := wireCommand{Action: cmd.Action()}
	switch v := cmd.(type) {
	case model.ReplyCommand:
		w.ConversationKey = mustJSON(string(v.ConversationKey))
		w.Text = mustJSON(v.Texts)
	case model.MuteCommand:
		w.ConversationKey = mustJSON(string(v.ConversationKey))
	case model.CalendarCommand:
		mins := int(v.Duration / time.Minute)
		w.Title = v.Title
		w.DateTime = v.Start.In(c.loc).Format(time.RFC3339)
		w.Duration = &mins
		w.EventType = v.Category
		w.IdempotencyKey = v.IdempotencyKey
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, cmd)
	}
	return json.Marshal(w)
}

func (c *Codec) parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable datetime %q", ErrMalformedCommand, s)
}

// key accepts conversation_key, or the legacy chat_id, as a string or an integer.
func (w wireCommand) key() (model.ConversationKey, error) {
	raw := w.ConversationKey
	if len(raw) == 0 {
		raw = w.ChatID
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		key := model.ConversationKey(strings.TrimSpace(s))
		if !key.Valid() {
			return "", fmt.Errorf("%w: conversation_key is blank", ErrMalformedCommand)
		}
		return key, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return model.ConversationKey(n.String()), nil
	}
	return "", fmt.Errorf("%w: invalid conversation_key", ErrMalformedCommand)
}

func decodeTexts(raw json.RawMessage) ([]string, error) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("%w: text must be a string or a list of strings", ErrMalformedCommand)
	}
	return many, nil
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
