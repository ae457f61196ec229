// Package local implements the transport against the local operating
// system: the process table, exec, and inbox sockets.
package local

import (
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/env"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/logger"
	"github.com/loykin/appconnect/internal/transport"
	"github.com/loykin/appconnect/pkg/inbox"
)

// RemoteSender delivers events to application URL addresses.
type RemoteSender interface {
	SendURL(ev event.Event, url string, timeout time.Duration, mode event.ReplyMode) (event.Reply, error)
}

// Config configures a local Transport. The zero value is usable.
type Config struct {
	InboxDir     string        // where inbox sockets live; inbox.DefaultDir() when empty
	Env          *env.Env      // base environment for launched applications
	Log          logger.Config // stdout/stderr capture for launched applications
	ReadyTimeout time.Duration // how long a blocking launch waits for the inbox socket
	Remote       RemoteSender  // handles application URL addresses
	Logger       *slog.Logger
}

type Transport struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	launching map[string]struct{}
}

var _ transport.Transport = (*Transport)(nil)

func New(cfg Config) *Transport {
	if cfg.InboxDir == "" {
		cfg.InboxDir = inbox.DefaultDir()
	}
	if cfg.Env == nil {
		cfg.Env = env.New(true)
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Transport{
		cfg:       cfg,
		log:       l.With("component", "transport.local"),
		launching: make(map[string]struct{}),
	}
}

// InboxDir returns the socket directory used for delivery.
func (t *Transport) InboxDir() string { return t.cfg.InboxDir }

// begin claims exe for one in-flight launch.
func (t *Transport) begin(exe string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.launching[exe]; busy {
		return false
	}
	t.launching[exe] = struct{}{}
	return true
}

func (t *Transport) end(exe string) {
	t.mu.Lock()
	delete(t.launching, exe)
	t.mu.Unlock()
}

func handleFor(pid int, start int64) address.ProcessHandle {
	return address.ProcessHandle{High: uint32(start), Low: uint32(pid)}
}
