package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReplyMode selects how a send waits for the target.
type ReplyMode int

const (
	NoReply   ReplyMode = iota // fire and forget
	WaitReply                  // block until the target answers or the timeout expires
)

func (m ReplyMode) String() string {
	if m == WaitReply {
		return "wait"
	}
	return "none"
}

// Event is an opaque, pre-encoded message. It is built once and never
// mutated; transports hand Encoded() to the wire as is.
type Event struct {
	class   string
	id      string
	encoded string
}

// Prebuilt events shared by the whole process.
var (
	LaunchNotify = MustNew("ascr", "noop")
	Run          = MustNew("aevt", "oapp")
)

// New builds an event from two four-character codes.
func New(class, id string) (Event, error) {
	if len(class) != 4 || len(id) != 4 {
		return Event{}, fmt.Errorf("event: codes must be four characters, got %q/%q", class, id)
	}
	b, err := json.Marshal(header{Class: class, ID: id})
	if err != nil {
		return Event{}, err
	}
	return Event{class: class, id: id, encoded: string(b)}, nil
}

func MustNew(class, id string) Event {
	e, err := New(class, id)
	if err != nil {
		panic(err)
	}
	return e
}

type header struct {
	Class string `json:"class"`
	ID    string `json:"id"`
}

func (e Event) Class() string { return e.class }
func (e Event) ID() string    { return e.id }

// Code returns "class/id", e.g. "aevt/oapp".
func (e Event) Code() string { return e.class + "/" + e.id }

// Encoded returns a copy of the wire form.
func (e Event) Encoded() []byte { return []byte(e.encoded) }

func (e Event) IsZero() bool { return e.encoded == "" }

// Decode rebuilds an event from its wire form.
func Decode(b []byte) (Event, error) {
	var h header
	if err := json.Unmarshal(b, &h); err != nil {
		return Event{}, fmt.Errorf("event: decode: %w", err)
	}
	return New(h.Class, h.ID)
}

// Parse accepts "run", "launch_notify" or "class/id".
func Parse(s string) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "run":
		return Run, nil
	case "launch_notify", "notify", "noop":
		return LaunchNotify, nil
	}
	class, id, ok := strings.Cut(s, "/")
	if !ok {
		return Event{}, fmt.Errorf("event: expected class/id, got %q", s)
	}
	return New(class, id)
}
