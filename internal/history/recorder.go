package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/loykin/appconnect/internal/transport"
)

const sinkTimeout = 5 * time.Second

// Recorder is a transport that reports launches and sends to sinks.
// Sink failures are logged and never change the call's outcome. Queries
// are not recorded.
type Recorder struct {
	next  transport.Transport
	sinks []Sink
	log   *slog.Logger
	now   func() time.Time
}

var _ transport.Transport = (*Recorder)(nil)

func NewRecorder(next transport.Transport, log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{next: next, sinks: sinks, log: log, now: time.Now}
}

func (r *Recorder) QueryProcessByPath(path string) (address.ProcessHandle, error) {
	return r.next.QueryProcessByPath(path)
}

func (r *Recorder) Launch(path string, ev event.Event, flags transport.LaunchFlags) (address.ProcessHandle, error) {
	h, err := r.next.Launch(path, ev, flags)
	e := Event{Type: EventLaunch, Path: path, Event: ev.Code()}
	if err != nil {
		e.Type = EventLaunchFailed
		fill(&e, err)
	} else {
		e.PID, e.Handle = h.Low, h.String()
	}
	r.emit(e)
	return h, err
}

func (r *Recorder) Send(ev event.Event, addr address.Descriptor, timeout time.Duration, mode event.ReplyMode) (event.Reply, error) {
	reply, err := r.next.Send(ev, addr, timeout, mode)
	e := Event{Type: EventSend, Target: addr.String(), Event: ev.Code()}
	if ev == event.LaunchNotify {
		e.Type = EventNotify
	}
	if pid, ok := addr.PID(); ok {
		e.PID = pid
	} else if h, ok := addr.ProcessHandle(); ok {
		e.PID, e.Handle = h.Low, h.String()
	}
	fill(&e, err)
	r.emit(e)
	return reply, err
}

// Close closes every sink that holds resources.
func (r *Recorder) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) emit(e Event) {
	e.OccurredAt = r.now().UTC()
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.Send(ctx, e); err != nil {
			r.log.Warn("history sink failed", "type", e.Type, "error", err)
		}
		cancel()
	}
}

func fill(e *Event, err error) {
	if err == nil {
		return
	}
	e.Error = err.Error()
	if code, ok := oserr.CodeOf(err); ok {
		e.Code = code
	}
}
