package client

import (
	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/event"
)

// PathRequest is the body of connect and notify.
type PathRequest struct {
	Path string `json:"path"`
}

// LaunchRequest asks the daemon to launch path with an event.
type LaunchRequest struct {
	Path  string  `json:"path"`
	Event string  `json:"event"`
	Flags *uint32 `json:"flags,omitempty"`
}

// SendRequest delivers an event to an address known to the daemon.
type SendRequest struct {
	Address address.Descriptor `json:"address"`
	Event   string             `json:"event"`
	Timeout string             `json:"timeout,omitempty"`
	Reply   bool               `json:"reply"`
}

type RunningResponse struct {
	Running bool `json:"running"`
}

type AddressResponse struct {
	Address address.Descriptor `json:"address"`
}

type HandleResponse struct {
	Handle address.ProcessHandle `json:"handle"`
}

type ReplyResponse struct {
	Reply event.Reply `json:"reply"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
	Kind  string `json:"kind"`
}
