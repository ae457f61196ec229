// Package connect resolves an application path to a sendable address,
// launching the application when it is not running.
//
// For every call the resolve step happens first and at most one launch
// is attempted. Concurrent calls for the same path are not coordinated.
package connect

import (
	"errors"
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/loykin/appconnect/internal/resolver"
	"github.com/loykin/appconnect/internal/transport"
)

type LaunchFlags = transport.LaunchFlags

const (
	LaunchContinue    = transport.LaunchContinue
	LaunchNoFileFlags = transport.LaunchNoFileFlags
	LaunchDontSwitch  = transport.LaunchDontSwitch

	// SilentLaunch is used for every launch.
	SilentLaunch = LaunchContinue | LaunchNoFileFlags | LaunchDontSwitch
)

const (
	// DefaultSettleDelay gives the launch database time to settle before a
	// launch. It is a workaround, not a retry policy.
	DefaultSettleDelay = time.Second
	// NotifyTimeout bounds the fire-and-forget notify send.
	NotifyTimeout = 60 * time.Second
)

// Coordinator is safe to share; it holds no mutable state.
type Coordinator struct {
	t        transport.Transport
	resolver *resolver.Resolver
	builder  address.Builder
	delay    time.Duration
	sleep    func(time.Duration)
}

type Option func(*Coordinator)

// WithFactory sets the descriptor factory used for returned addresses.
func WithFactory(f address.Factory) Option {
	return func(c *Coordinator) { c.builder = address.NewBuilder(f) }
}

// WithSleep replaces time.Sleep, mainly for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func New(t transport.Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		t:        t,
		resolver: resolver.New(t),
		builder:  address.NewBuilder(nil),
		delay:    DefaultSettleDelay,
		sleep:    time.Sleep,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EnsureRunningAndNotify sends the launch-notify event to a running
// instance, or launches the application silently with that event.
func (c *Coordinator) EnsureRunningAndNotify(path string) error {
	h, err := c.resolver.FindProcessHandle(path)
	if err == nil {
		_, err = c.t.Send(event.LaunchNotify, c.builder.FromProcessHandle(h), NotifyTimeout, event.NoReply)
		return err
	}
	if !errors.Is(err, resolver.ErrNotRunning) {
		return err
	}
	c.sleep(c.delay)
	_, err = c.launch(path, event.LaunchNotify)
	return err
}

// EnsureRunningAddress returns a process-handle address for the
// application, launching it with the run event when needed. Addressing
// by handle keeps several running versions of one app apart.
func (c *Coordinator) EnsureRunningAddress(path string) (address.Descriptor, error) {
	h, err := c.resolver.FindProcessHandle(path)
	if err != nil {
		if !errors.Is(err, resolver.ErrNotRunning) {
			return address.Descriptor{}, err
		}
		c.sleep(c.delay)
		h, err = c.launch(path, event.Run)
		if err != nil {
			return address.Descriptor{}, err
		}
	}
	return c.builder.FromProcessHandle(h), nil
}

// IsRunning reports whether the application is running. Failures other
// than "not running" are returned, never folded into false.
func (c *Coordinator) IsRunning(path string) (bool, error) {
	return c.resolver.IsRunning(path)
}

// launch is the only place launch failures surface.
func (c *Coordinator) launch(path string, ev event.Event) (address.ProcessHandle, error) {
	h, err := c.t.Launch(path, ev, SilentLaunch)
	if err == nil {
		return h, nil
	}
	code, ok := oserr.CodeOf(err)
	if !ok {
		code = oserr.CodeUnknown
	}
	return address.ProcessHandle{}, oserr.Translate(code)
}
