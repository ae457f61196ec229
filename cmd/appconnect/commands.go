package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/appconnect"
	"github.com/loykin/appconnect/internal/config"
	"github.com/loykin/appconnect/internal/logger"
	"github.com/loykin/appconnect/internal/transport/local"
	"github.com/loykin/appconnect/pkg/client"
	"github.com/loykin/appconnect/pkg/inbox"
)

// backend is what the one-shot commands need, served either by this
// host or by a remote daemon.
type backend interface {
	Running(ctx context.Context, path string) (bool, error)
	Connect(ctx context.Context, path string) (appconnect.Descriptor, error)
	Notify(ctx context.Context, path string) error
	Send(ev appconnect.Event, addr appconnect.Descriptor, timeout time.Duration, mode appconnect.ReplyMode) (appconnect.Reply, error)
}

type localBackend struct{ c *appconnect.Connector }

func (l localBackend) Running(_ context.Context, path string) (bool, error) {
	return l.c.IsRunning(path)
}

func (l localBackend) Connect(_ context.Context, path string) (appconnect.Descriptor, error) {
	return l.c.EnsureRunningAddress(path)
}

func (l localBackend) Notify(_ context.Context, path string) error {
	return l.c.EnsureRunningAndNotify(path)
}

func (l localBackend) Send(ev appconnect.Event, addr appconnect.Descriptor, timeout time.Duration, mode appconnect.ReplyMode) (appconnect.Reply, error) {
	return l.c.Send(ev, addr, timeout, mode)
}

type command struct {
	global *GlobalFlags
	out    io.Writer
}

func (c command) config() (*config.Config, error) {
	return config.Load(c.global.ConfigPath)
}

func clientConfig(cfg *config.Config, apiURL string, timeout time.Duration, log *slog.Logger) client.Config {
	cc := client.Config{
		BaseURL:  apiURL,
		Timeout:  timeout,
		Logger:   log,
		Username: cfg.Client.Username,
		Password: cfg.Client.Password,
		Insecure: cfg.Client.Insecure,
	}
	if cfg.Client.CACert != "" {
		cc.TLS = &client.TLSClientConfig{CACert: cfg.Client.CACert}
	}
	return cc
}

// backend picks the remote daemon when an API URL is configured by flag
// or config, and this host otherwise.
func (c command) backend() (backend, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LoggerSettings())
	timeout := c.global.APITimeout
	if timeout <= 0 {
		timeout = cfg.Client.Timeout
	}
	apiURL := c.global.APIUrl
	if apiURL == "" {
		apiURL = cfg.Client.APIURL
	}
	remote := clientConfig(cfg, "", timeout, log)
	if apiURL != "" {
		remote.BaseURL = apiURL
		return client.New(remote), nil
	}
	e, err := cfg.LaunchEnv()
	if err != nil {
		return nil, err
	}
	t := local.New(local.Config{
		InboxDir:     cfg.Launch.InboxDir,
		Env:          e,
		Log:          cfg.OutputLog(),
		ReadyTimeout: cfg.Launch.ReadyTimeout,
		Remote:       client.NewURLSender(remote),
		Logger:       log,
	})
	return localBackend{c: appconnect.New(appconnect.Options{Transport: t})}, nil
}

func (c command) requestContext() (context.Context, context.CancelFunc) {
	timeout := c.global.APITimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (c command) Running(path string) error {
	b, err := c.backend()
	if err != nil {
		return err
	}
	ctx, cancel := c.requestContext()
	defer cancel()
	running, err := b.Running(ctx, path)
	if err != nil {
		return err
	}
	printJSON(c.out, map[string]any{"path": path, "running": running})
	return nil
}

func (c command) Connect(path string) error {
	b, err := c.backend()
	if err != nil {
		return err
	}
	ctx, cancel := c.requestContext()
	defer cancel()
	addr, err := b.Connect(ctx, path)
	if err != nil {
		return err
	}
	printJSON(c.out, map[string]any{"path": path, "address": addr})
	return nil
}

func (c command) Notify(path string) error {
	b, err := c.backend()
	if err != nil {
		return err
	}
	ctx, cancel := c.requestContext()
	defer cancel()
	if err := b.Notify(ctx, path); err != nil {
		return err
	}
	printJSON(c.out, map[string]any{"path": path, "notified": true})
	return nil
}

// Send delivers an event. An absolute application path is connected to
// first, launching the application when needed.
func (c command) Send(target string, f SendFlags) error {
	ev, err := appconnect.ParseEvent(f.Event)
	if err != nil {
		return err
	}
	b, err := c.backend()
	if err != nil {
		return err
	}
	var addr appconnect.Descriptor
	if filepath.IsAbs(target) {
		ctx, cancel := c.requestContext()
		addr, err = b.Connect(ctx, target)
		cancel()
	} else {
		addr, err = parseAddress(target)
	}
	if err != nil {
		return err
	}
	mode := appconnect.NoReply
	if f.Wait {
		mode = appconnect.WaitReply
	}
	reply, err := b.Send(ev, addr, f.Timeout, mode)
	if err != nil {
		return err
	}
	out := map[string]any{"address": addr, "event": ev.Code()}
	if f.Wait {
		out["reply"] = reply
	}
	printJSON(c.out, out)
	return nil
}

func (c command) Address(kind, value string) error {
	var (
		addr appconnect.Descriptor
		err  error
	)
	switch kind {
	case "pid":
		addr, err = parseAddress("pid:" + value)
	case "url":
		addr = appconnect.RemoteApp(value)
	case "psn":
		addr, err = parseAddress("psn:" + value)
	default:
		err = fmt.Errorf("unknown address kind %q: want pid, psn or url", kind)
	}
	if err != nil {
		return err
	}
	printJSON(c.out, map[string]any{"address": addr})
	return nil
}

// Inbox listens like an addressable application and prints every event
// it receives until interrupted.
func (c command) Inbox(f InboxFlags) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	// a launched instance follows the directory its launcher chose
	dir := f.Dir
	if dir == "" {
		dir = os.Getenv(inbox.EnvInboxDir)
	}
	if dir == "" {
		dir = cfg.Launch.InboxDir
	}
	log := logger.New(cfg.LoggerSettings())

	if ev, ok, err := inbox.LaunchEvent(); err != nil {
		log.Warn("ignoring launch event", "error", err)
	} else if ok {
		printJSON(c.out, map[string]any{"launch_event": ev.Code()})
	}

	var result json.RawMessage
	if f.Reply != "" {
		if !json.Valid([]byte(f.Reply)) {
			return fmt.Errorf("--reply must be valid JSON")
		}
		result = json.RawMessage(f.Reply)
	}
	var mu sync.Mutex
	h := inbox.HandlerFunc(func(_ context.Context, ev inbox.Event) (json.RawMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		printJSON(c.out, map[string]any{"event": ev.Code(), "received_at": time.Now().Format(time.RFC3339)})
		return result, nil
	})
	ib, err := inbox.Listen(dir, h, inbox.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = ib.Close() }()
	printJSON(c.out, map[string]any{"pid": os.Getpid(), "socket": ib.Path()})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = ib.Close()
	}()
	if err := ib.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
