package address

import (
	"encoding/binary"
	"fmt"
)

// Type tags the addressing mode of a Descriptor.
type Type string

const (
	TypeProcessHandle  Type = "psn " // process identity pair
	TypeUnixPID        Type = "kpid" // kernel process id
	TypeApplicationURL Type = "aprl" // remote application URL
)

// ProcessHandle identifies one running process instance. It is not reused
// across launches, so it must never be cached between calls.
type ProcessHandle struct {
	High uint32 `json:"high"`
	Low  uint32 `json:"low"`
}

const (
	kNoProcess      = 0
	kCurrentProcess = 2
)

// String renders the handle as "high:low".
func (h ProcessHandle) String() string { return fmt.Sprintf("%d:%d", h.High, h.Low) }

// IsSentinel reports whether h is one of the two well-known handles.
func (h ProcessHandle) IsSentinel() bool {
	return h.High == 0 && (h.Low == kNoProcess || h.Low == kCurrentProcess)
}

// Descriptor is an opaque, immutable address value. Descriptors are
// comparable with == and are always passed by value.
type Descriptor struct {
	typ  Type
	data string
}

// Type returns the descriptor tag.
func (d Descriptor) Type() Type { return d.typ }

// Data returns a copy of the raw payload.
func (d Descriptor) Data() []byte { return []byte(d.data) }

// IsZero reports whether d was never built.
func (d Descriptor) IsZero() bool { return d.typ == "" && d.data == "" }

// ProcessHandle decodes the payload of a process handle descriptor.
func (d Descriptor) ProcessHandle() (ProcessHandle, bool) {
	if d.typ != TypeProcessHandle || len(d.data) != 8 {
		return ProcessHandle{}, false
	}
	b := []byte(d.data)
	return ProcessHandle{
		High: binary.LittleEndian.Uint32(b[0:4]),
		Low:  binary.LittleEndian.Uint32(b[4:8]),
	}, true
}

// PID decodes the payload of a unix pid descriptor.
func (d Descriptor) PID() (uint32, bool) {
	if d.typ != TypeUnixPID || len(d.data) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32([]byte(d.data)), true
}

// URL returns the payload of an application URL descriptor.
func (d Descriptor) URL() (string, bool) {
	if d.typ != TypeApplicationURL {
		return "", false
	}
	return d.data, true
}

func (d Descriptor) String() string {
	switch d.typ {
	case TypeProcessHandle:
		h, _ := d.ProcessHandle()
		return "psn(" + h.String() + ")"
	case TypeUnixPID:
		pid, _ := d.PID()
		return fmt.Sprintf("pid(%d)", pid)
	case TypeApplicationURL:
		return "url(" + redactURL(d.data) + ")"
	default:
		return "desc(" + string(d.typ) + ")"
	}
}
