package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a Message.
type MessageType string

const (
	// MessageTypeIntent requests work.
	MessageTypeIntent MessageType = "intent"
	// MessageTypeEvent announces something that happened.
	MessageTypeEvent MessageType = "event"
	// MessageTypeResponse answers an intent.
	MessageTypeResponse MessageType = "response"
	// MessageTypeError reports a failure.
	MessageTypeError MessageType = "error"
	// MessageTypeSignal carries control information.
	MessageTypeSignal MessageType = "signal"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeIntent, MessageTypeEvent, MessageTypeResponse, MessageTypeError, MessageTypeSignal:
		return true
	}
	return false
}

// Message is the immutable envelope exchanged over the bus. Copies handed to
// subscribers are produced with Clone so no two receivers share payload maps.
type Message struct {
	Type          MessageType    `json:"type"`
	Source        string         `json:"source"`
	Target        string         `json:"target,omitempty"`
	Payload       map[string]any `json:"payload"`
	Metadata      map[string]any `json:"metadata"`
	MessageID     string         `json:"message_id"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
}

// MessageOption customises a Message built by NewMessage.
type MessageOption func(m *Message)

// WithTarget sets the message target.
func WithTarget(target string) MessageOption {
	return func(m *Message) { m.Target = target }
}

// WithMetadata sets the message metadata.
func WithMetadata(md map[string]any) MessageOption {
	return func(m *Message) { m.Metadata = CloneMap(md) }
}

// WithCorrelationID ties the message to an earlier one.
func WithCorrelationID(id string) MessageOption {
	return func(m *Message) { m.CorrelationID = id }
}

// NewMessage builds a Message with a fresh id. CorrelationID defaults to the
// message id when no option sets it.
func NewMessage(typ MessageType, source string, payload map[string]any, opts ...MessageOption) Message {
	m := Message{
		Type:      typ,
		Source:    source,
		Payload:   CloneMap(payload),
		Metadata:  map[string]any{},
		MessageID: NewID(),
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.Payload == nil {
		m.Payload = map[string]any{}
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	if m.CorrelationID == "" {
		m.CorrelationID = m.MessageID
	}
	return m
}

// Reply creates a RESPONSE to m. The reply is addressed back to m's source and
// its correlation id is m's message id.
func (m Message) Reply(payload map[string]any) Message {
	return NewMessage(MessageTypeResponse, m.Target, payload,
		WithTarget(m.Source),
		WithCorrelationID(m.MessageID),
	)
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	c := m
	c.Payload = CloneMap(m.Payload)
	c.Metadata = CloneMap(m.Metadata)
	return c
}

// String implements fmt.Stringer.
func (m Message) String() string {
	return fmt.Sprintf("Message(type=%s, source=%s, target=%s, id=%s)", m.Type, m.Source, m.Target, m.MessageID)
}

// UnmarshalJSON decodes the wire shape, validating the type and defaulting the
// correlation id.
func (m *Message) UnmarshalJSON(data []byte) error {
	type wire Message
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("%w: unknown message type %q", ErrValidation, w.Type)
	}
	if w.MessageID == "" {
		w.MessageID = NewID()
	}
	if w.CorrelationID == "" {
		w.CorrelationID = w.MessageID
	}
	*m = Message(w)
	return nil
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }

// CloneMap deep copies nested maps and slices of a structured payload.
// Scalar values are shared.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// CloneValue deep copies a single payload value.
func CloneValue(v any) any { return cloneValue(v) }

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case Intent:
		return Intent(CloneMap(t))
	case Result:
		return Result(CloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
