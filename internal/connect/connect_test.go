package connect

import (
	"errors"
	"testing"
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/loykin/appconnect/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type launchCall struct {
	Path  string
	Event event.Event
	Flags transport.LaunchFlags
}

type sendCall struct {
	Event   event.Event
	Addr    address.Descriptor
	Timeout time.Duration
	Mode    event.ReplyMode
}

// mockTransport records calls in order.
type mockTransport struct {
	queryHandle address.ProcessHandle
	queryErr    error
	launchedH   address.ProcessHandle
	launchErr   error
	sendErr     error

	log      []string
	queries  []string
	launches []launchCall
	sends    []sendCall
}

func (m *mockTransport) QueryProcessByPath(path string) (address.ProcessHandle, error) {
	m.log = append(m.log, "query")
	m.queries = append(m.queries, path)
	return m.queryHandle, m.queryErr
}

func (m *mockTransport) Launch(path string, ev event.Event, flags transport.LaunchFlags) (address.ProcessHandle, error) {
	m.log = append(m.log, "launch")
	m.launches = append(m.launches, launchCall{path, ev, flags})
	return m.launchedH, m.launchErr
}

func (m *mockTransport) Send(ev event.Event, addr address.Descriptor, timeout time.Duration, mode event.ReplyMode) (event.Reply, error) {
	m.log = append(m.log, "send")
	m.sends = append(m.sends, sendCall{ev, addr, timeout, mode})
	return event.Reply{}, m.sendErr
}

type sleepRecorder struct {
	m     *mockTransport
	slept []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.slept = append(s.slept, d)
	s.m.log = append(s.m.log, "sleep")
}

func newTestCoordinator(m *mockTransport) (*Coordinator, *sleepRecorder) {
	rec := &sleepRecorder{m: m}
	return New(m, WithSleep(rec.sleep)), rec
}

func notRunning() error { return oserr.New("query", oserr.CodeProcNotFound, nil) }

const appPath = "/opt/apps/Editor.app"

func TestSilentLaunchFlags(t *testing.T) {
	assert.Equal(t, transport.LaunchFlags(0x4a00), SilentLaunch)
	assert.Equal(t, "continue|nofiles|dontswitch", SilentLaunch.String())
}

func TestEnsureRunningAddress_AlreadyRunning(t *testing.T) {
	h := address.ProcessHandle{High: 1700000000, Low: 321}
	m := &mockTransport{queryHandle: h}
	c, rec := newTestCoordinator(m)

	addr, err := c.EnsureRunningAddress(appPath)
	require.NoError(t, err)
	assert.Equal(t, address.FromProcessHandle(h), addr)
	assert.Empty(t, m.launches)
	assert.Empty(t, m.sends)
	assert.Empty(t, rec.slept)
	assert.Equal(t, []string{appPath}, m.queries)
}

func TestEnsureRunningAddress_LaunchesWhenNotRunning(t *testing.T) {
	newH := address.ProcessHandle{High: 1700000001, Low: 999}
	m := &mockTransport{queryErr: notRunning(), launchedH: newH}
	c, rec := newTestCoordinator(m)

	addr, err := c.EnsureRunningAddress(appPath)
	require.NoError(t, err)
	assert.Equal(t, address.FromProcessHandle(newH), addr)

	require.Len(t, m.launches, 1)
	assert.Equal(t, launchCall{appPath, event.Run, SilentLaunch}, m.launches[0])
	assert.Equal(t, []time.Duration{time.Second}, rec.slept)
	assert.Equal(t, []string{"query", "sleep", "launch"}, m.log)
}

func TestEnsureRunningAddress_LaunchInProgress(t *testing.T) {
	m := &mockTransport{queryErr: notRunning(), launchErr: oserr.New("launch", -10818, nil)}
	c, _ := newTestCoordinator(m)

	addr, err := c.EnsureRunningAddress(appPath)
	assert.True(t, addr.IsZero())
	var ce *oserr.CantLaunchApplicationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, -10818, ce.Code)
	assert.Equal(t, "A launch of the application is already in progress.", ce.Description)
	assert.Equal(t, "A launch of the application is already in progress. (-10818)", err.Error())
	assert.Len(t, m.launches, 1)
}

func TestEnsureRunningAddress_UnknownLaunchCode(t *testing.T) {
	m := &mockTransport{queryErr: notRunning(), launchErr: oserr.New("launch", -5, nil)}
	c, _ := newTestCoordinator(m)

	_, err := c.EnsureRunningAddress(appPath)
	var ce *oserr.CantLaunchApplicationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "OS error (-5)", ce.Error())
}

func TestEnsureRunningAddress_LaunchErrorWithoutCode(t *testing.T) {
	m := &mockTransport{queryErr: notRunning(), launchErr: errors.New("socket closed")}
	c, _ := newTestCoordinator(m)

	_, err := c.EnsureRunningAddress(appPath)
	var ce *oserr.CantLaunchApplicationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, oserr.CodeUnknown, ce.Code)
}

func TestEnsureRunningAndNotify_AlreadyRunning(t *testing.T) {
	h := address.ProcessHandle{High: 5, Low: 6}
	m := &mockTransport{queryHandle: h}
	c, rec := newTestCoordinator(m)

	require.NoError(t, c.EnsureRunningAndNotify(appPath))
	assert.Empty(t, m.launches)
	assert.Empty(t, rec.slept)
	require.Len(t, m.sends, 1)
	s := m.sends[0]
	assert.Equal(t, event.LaunchNotify, s.Event)
	assert.Equal(t, address.FromProcessHandle(h), s.Addr)
	assert.Equal(t, 60*time.Second, s.Timeout)
	assert.Equal(t, event.NoReply, s.Mode)
}

func TestEnsureRunningAndNotify_SendErrorReturned(t *testing.T) {
	sendErr := oserr.New("send", oserr.CodeTimeout, nil)
	m := &mockTransport{queryHandle: address.ProcessHandle{High: 5, Low: 6}, sendErr: sendErr}
	c, _ := newTestCoordinator(m)

	assert.Same(t, sendErr, c.EnsureRunningAndNotify(appPath))
	assert.Empty(t, m.launches)
}

func TestEnsureRunningAndNotify_LaunchesWithNotifyEvent(t *testing.T) {
	m := &mockTransport{queryErr: notRunning(), launchedH: address.ProcessHandle{High: 1, Low: 1}}
	c, rec := newTestCoordinator(m)

	require.NoError(t, c.EnsureRunningAndNotify(appPath))
	require.Len(t, m.launches, 1)
	assert.Equal(t, launchCall{appPath, event.LaunchNotify, SilentLaunch}, m.launches[0])
	assert.Empty(t, m.sends)
	assert.Equal(t, []time.Duration{time.Second}, rec.slept)
	assert.Equal(t, []string{"query", "sleep", "launch"}, m.log)
}

func TestEnsureRunningAndNotify_LaunchFailureTranslated(t *testing.T) {
	m := &mockTransport{queryErr: notRunning(), launchErr: oserr.New("launch", oserr.CodeNoExecutable, nil)}
	c, _ := newTestCoordinator(m)

	err := c.EnsureRunningAndNotify(appPath)
	var ce *oserr.CantLaunchApplicationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, oserr.CodeNoExecutable, ce.Code)
}

func TestOtherOSErrorPropagatesFromBothEntryPoints(t *testing.T) {
	orig := oserr.New("query", -43, nil)

	m := &mockTransport{queryErr: orig}
	c, rec := newTestCoordinator(m)
	_, err := c.EnsureRunningAddress(appPath)
	assert.Same(t, orig, err)
	assert.Empty(t, m.launches)
	assert.Empty(t, rec.slept)

	m2 := &mockTransport{queryErr: orig}
	c2, rec2 := newTestCoordinator(m2)
	assert.Same(t, orig, c2.EnsureRunningAndNotify(appPath))
	assert.Empty(t, m2.launches)
	assert.Empty(t, m2.sends)
	assert.Empty(t, rec2.slept)
}

func TestIsRunning(t *testing.T) {
	c, _ := newTestCoordinator(&mockTransport{})
	ok, err := c.IsRunning(appPath)
	require.NoError(t, err)
	assert.True(t, ok)

	c, _ = newTestCoordinator(&mockTransport{queryErr: notRunning()})
	ok, err = c.IsRunning(appPath)
	require.NoError(t, err)
	assert.False(t, ok)

	orig := oserr.New("query", -43, nil)
	m := &mockTransport{queryErr: orig}
	c, _ = newTestCoordinator(m)
	ok, err = c.IsRunning(appPath)
	assert.False(t, ok)
	assert.Same(t, orig, err)
	assert.Empty(t, m.launches)
}

type taggingFactory struct{ n int }

func (f *taggingFactory) Build(t address.Type, payload []byte) address.Descriptor {
	f.n++
	return address.RawFactory{}.Build(t, payload)
}

func TestWithFactory(t *testing.T) {
	f := &taggingFactory{}
	m := &mockTransport{queryHandle: address.ProcessHandle{High: 1, Low: 2}}
	c := New(m, WithFactory(f), WithSleep(func(time.Duration) {}))
	_, err := c.EnsureRunningAddress(appPath)
	require.NoError(t, err)
	assert.Equal(t, 1, f.n)
}
