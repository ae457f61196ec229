package transport

import (
	"strings"
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/event"
)

// LaunchFlags is the bitmask handed to Launch.
type LaunchFlags uint32

const (
	LaunchDontSwitch  LaunchFlags = 0x0200 // keep the new process in the background
	LaunchNoFileFlags LaunchFlags = 0x0800 // pass no document arguments
	LaunchContinue    LaunchFlags = 0x4000 // return as soon as the process starts
)

func (f LaunchFlags) Has(x LaunchFlags) bool { return f&x == x }

func (f LaunchFlags) String() string {
	var parts []string
	if f.Has(LaunchContinue) {
		parts = append(parts, "continue")
	}
	if f.Has(LaunchNoFileFlags) {
		parts = append(parts, "nofiles")
	}
	if f.Has(LaunchDontSwitch) {
		parts = append(parts, "dontswitch")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Transport is the OS-facing capability used by the resolver and the
// launch coordinator. Every call blocks. Failures are *oserr.OSError
// values carrying the raw status code.
type Transport interface {
	// QueryProcessByPath returns the handle of the running process for
	// the application at path, or status -600 when none is running.
	QueryProcessByPath(path string) (address.ProcessHandle, error)
	// Launch starts the application at path and delivers ev to it.
	Launch(path string, ev event.Event, flags LaunchFlags) (address.ProcessHandle, error)
	// Send delivers ev to addr. With event.NoReply the returned Reply is empty.
	Send(ev event.Event, addr address.Descriptor, timeout time.Duration, mode event.ReplyMode) (event.Reply, error)
}
