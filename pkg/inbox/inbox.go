// Package inbox is the receiving side of event delivery. Applications
// that want to be addressed call Listen at startup; the local transport
// then reaches them through a unix socket named after their pid.
package inbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
)

const (
	// EnvLaunchEvent carries the encoded event given at launch.
	EnvLaunchEvent = "APPCONNECT_LAUNCH_EVENT"
	// EnvInboxDir tells a launched application where to create its socket.
	EnvInboxDir = "APPCONNECT_INBOX_DIR"

	maxFrame = 1 << 20
)

type (
	Event     = event.Event
	Envelope  = event.Envelope
	Reply     = event.Reply
	ReplyMode = event.ReplyMode
)

// Handler processes one delivered event. The returned result is sent
// back when the sender waits for a reply.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event) (json.RawMessage, error)
}

type HandlerFunc func(ctx context.Context, ev Event) (json.RawMessage, error)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) (json.RawMessage, error) {
	return f(ctx, ev)
}

// DefaultDir is used when neither the caller nor the environment names one.
func DefaultDir() string {
	if d := os.Getenv(EnvInboxDir); d != "" {
		return d
	}
	return filepath.Join(os.TempDir(), "appconnect")
}

// SocketPath is the inbox socket of process pid.
func SocketPath(dir string, pid int) string {
	return filepath.Join(dir, strconv.Itoa(pid)+".sock")
}

// LaunchEvent returns the event this process was launched with, if any.
func LaunchEvent() (Event, bool, error) {
	raw := os.Getenv(EnvLaunchEvent)
	if raw == "" {
		return Event{}, false, nil
	}
	ev, err := event.Decode([]byte(raw))
	if err != nil {
		return Event{}, false, err
	}
	return ev, true, nil
}

// Inbox accepts events on a unix socket.
type Inbox struct {
	path    string
	ln      net.Listener
	h       Handler
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Inbox)

func WithLogger(l *slog.Logger) Option {
	return func(i *Inbox) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithReadTimeout bounds how long a connection may take to send its frame.
func WithReadTimeout(d time.Duration) Option {
	return func(i *Inbox) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// Listen creates the socket for the current process in dir (DefaultDir
// when empty). A stale socket left by a previous process with the same
// pid is replaced.
func Listen(dir string, h Handler, opts ...Option) (*Inbox, error) {
	if h == nil {
		return nil, errors.New("inbox: nil handler")
	}
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("inbox: create dir: %w", err)
	}
	path := SocketPath(dir, os.Getpid())
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("inbox: listen: %w", err)
	}
	i := &Inbox{path: path, ln: ln, h: h, logger: slog.Default(), timeout: 10 * time.Second}
	for _, o := range opts {
		o(i)
	}
	return i, nil
}

// Path returns the socket path.
func (i *Inbox) Path() string { return i.path }

// Serve accepts connections until Close is called.
func (i *Inbox) Serve(ctx context.Context) error {
	for {
		conn, err := i.ln.Accept()
		if err != nil {
			if i.isClosed() {
				return nil
			}
			return err
		}
		i.mu.Lock()
		if i.closed {
			i.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		i.wg.Add(1)
		i.mu.Unlock()
		go func() {
			defer i.wg.Done()
			i.handleConn(ctx, conn)
		}()
	}
}

func (i *Inbox) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Close stops accepting, waits for in-flight handlers and removes the socket.
func (i *Inbox) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	err := i.ln.Close()
	i.mu.Unlock()
	i.wg.Wait()
	_ = os.Remove(i.path)
	return err
}

func (i *Inbox) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(i.timeout))

	r := bufio.NewReaderSize(conn, 4096)
	line, err := readFrame(r)
	if err != nil {
		i.logger.Debug("inbox read failed", "error", err)
		return
	}
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		i.logger.Warn("inbox received malformed envelope", "error", err)
		return
	}
	reply := i.Deliver(ctx, env)
	if !env.WantReply {
		return
	}
	b, err := json.Marshal(reply)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(i.timeout))
	if _, err := conn.Write(append(b, '\n')); err != nil {
		i.logger.Debug("inbox reply failed", "id", env.ID, "error", err)
	}
}

// Deliver hands env to the handler and builds the reply.
func (i *Inbox) Deliver(ctx context.Context, env Envelope) Reply {
	reply := Reply{ID: env.ID}
	ev, err := env.Unwrap()
	if err != nil {
		reply.Code = oserr.CodeEventNotHandled
		reply.Error = err.Error()
		return reply
	}
	i.logger.Debug("inbox event", "id", env.ID, "event", ev.Code())
	res, err := i.h.HandleEvent(ctx, ev)
	if err != nil {
		code, ok := oserr.CodeOf(err)
		if !ok {
			code = oserr.CodeEventNotHandled
		}
		reply.Code = code
		reply.Error = err.Error()
		return reply
	}
	reply.Result = res
	return reply
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
		if len(buf) > maxFrame {
			return nil, errors.New("inbox: frame too large")
		}
		if !isPrefix {
			return buf, nil
		}
	}
}
