package event

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope is one newline-delimited JSON frame on an inbox socket.
type Envelope struct {
	ID        string          `json:"id"`
	Event     json.RawMessage `json:"event"`
	WantReply bool            `json:"want_reply"`
}

// Reply answers an Envelope with the same ID.
type Reply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Code   int             `json:"code,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Wrap builds an envelope for e with a fresh id.
func Wrap(e Event, mode ReplyMode) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Event:     json.RawMessage(e.Encoded()),
		WantReply: mode == WaitReply,
	}
}

// Unwrap decodes the event carried by env.
func (env Envelope) Unwrap() (Event, error) { return Decode(env.Event) }
