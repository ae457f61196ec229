package metrics

import (
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/transport"
)

type instrumented struct {
	next transport.Transport
	now  func() time.Time
}

// Instrument wraps t so every call is counted. Calls made before Register
// are passed through without recording.
func Instrument(t transport.Transport) transport.Transport {
	return &instrumented{next: t, now: time.Now}
}

func (i *instrumented) QueryProcessByPath(path string) (address.ProcessHandle, error) {
	h, err := i.next.QueryProcessByPath(path)
	IncQuery(Result(err))
	return h, err
}

func (i *instrumented) Launch(path string, ev event.Event, flags transport.LaunchFlags) (address.ProcessHandle, error) {
	start := i.now()
	h, err := i.next.Launch(path, ev, flags)
	ObserveLaunchDuration(i.now().Sub(start).Seconds())
	IncLaunch(Result(err))
	return h, err
}

func (i *instrumented) Send(ev event.Event, addr address.Descriptor, timeout time.Duration, mode event.ReplyMode) (event.Reply, error) {
	r, err := i.next.Send(ev, addr, timeout, mode)
	IncSend(Result(err), mode.String())
	return r, err
}
