package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/config"
	"github.com/loykin/appconnect/internal/connect"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/loykin/appconnect/internal/server"
	"github.com/loykin/appconnect/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type daemonFake struct {
	mu    sync.Mutex
	sends []event.Event
}

func (f *daemonFake) QueryProcessByPath(p string) (address.ProcessHandle, error) {
	if p == "/Applications/Mail.app" {
		return address.ProcessHandle{High: 1700000000, Low: 501}, nil
	}
	return address.ProcessHandle{}, oserr.New("query", oserr.CodeProcNotFound, nil)
}

func (f *daemonFake) Launch(p string, _ event.Event, _ transport.LaunchFlags) (address.ProcessHandle, error) {
	if p == "/Applications/Broken.app" {
		return address.ProcessHandle{}, oserr.New("launch", -10827, nil)
	}
	return address.ProcessHandle{High: 1700000100, Low: 900}, nil
}

func (f *daemonFake) Send(ev event.Event, _ address.Descriptor, _ time.Duration, _ event.ReplyMode) (event.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, ev)
	return event.Reply{ID: "r1", Result: json.RawMessage(`"pong"`)}, nil
}

func newRemote(t *testing.T) (*daemonFake, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &daemonFake{}
	r := server.NewRouter(f, "/api", server.WithCoordinatorOptions(connect.WithSleep(func(time.Duration) {})))
	srv := httptest.NewServer(r.Handler())
	t.Cleanup(srv.Close)
	return f, srv.URL + "/api"
}

func run(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	var out bytes.Buffer
	root := buildRoot(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return nil, err
	}
	var m map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &m), out.String())
	return m, nil
}

func TestRunningViaAPI(t *testing.T) {
	_, api := newRemote(t)

	m, err := run(t, "running", "/Applications/Mail.app", "--api-url", api)
	require.NoError(t, err)
	assert.Equal(t, true, m["running"])

	m, err = run(t, "running", "/Applications/Notes.app", "--api-url", api)
	require.NoError(t, err)
	assert.Equal(t, false, m["running"])
}

func TestConnectViaAPI(t *testing.T) {
	_, api := newRemote(t)

	m, err := run(t, "connect", "/Applications/Notes.app", "--api-url", api)
	require.NoError(t, err)
	addr := m["address"].(map[string]any)
	assert.Equal(t, "psn ", addr["type"])

	_, err = run(t, "connect", "/Applications/Broken.app", "--api-url", api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(-10827)")
}

func TestNotifyAndSendViaAPI(t *testing.T) {
	f, api := newRemote(t)

	_, err := run(t, "notify", "/Applications/Mail.app", "--api-url", api)
	require.NoError(t, err)

	m, err := run(t, "send", "/Applications/Mail.app", "--event", "run", "--wait", "--api-url", api)
	require.NoError(t, err)
	assert.Equal(t, "aevt/oapp", m["event"])
	reply := m["reply"].(map[string]any)
	assert.Equal(t, "pong", reply["result"])

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.sends, 2)
	assert.Equal(t, event.LaunchNotify, f.sends[0])
	assert.Equal(t, event.Run, f.sends[1])
}

func TestSendRejectsBadInput(t *testing.T) {
	_, api := newRemote(t)
	_, err := run(t, "send", "pid:abc", "--api-url", api)
	assert.Error(t, err)
	_, err = run(t, "send", "pid:1", "--event", "nope", "--api-url", api)
	assert.Error(t, err)
}

func TestAddressCommand(t *testing.T) {
	m, err := run(t, "address", "pid", "4242")
	require.NoError(t, err)
	addr := m["address"].(map[string]any)
	assert.Equal(t, "kpid", addr["type"])

	m, err = run(t, "address", "psn", "1700000000:7")
	require.NoError(t, err)
	addr = m["address"].(map[string]any)
	assert.Equal(t, "psn ", addr["type"])

	_, err = run(t, "address", "fd", "3")
	assert.Error(t, err)
}

func TestStartDaemonWiresStack(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	dbPath := filepath.Join(t.TempDir(), "history.db")
	writeFile(t, cfgPath, `
[server]
listen = "127.0.0.1:0"
base_path = "/api"

[log]
level = "error"

[metrics]
enabled = true
listen = "localhost:0"

[history]
enabled = true
sinks = ["sqlite://`+dbPath+`"]

[launch]
inbox_dir = "`+t.TempDir()+`"
`)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	d, err := startDaemon(cfg)
	require.NoError(t, err)
	require.NotNil(t, d.api)
	require.NotNil(t, d.metrics)
	require.NotNil(t, d.recorder)
	assert.NoError(t, d.stop())
	assert.FileExists(t, dbPath)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestAuthHashCommand(t *testing.T) {
	var out bytes.Buffer
	root := buildRoot(&out)
	root.SetArgs([]string{"auth", "hash", "s3cret", "--cost", "4"})
	require.NoError(t, root.Execute())
	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}
