package local

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/loykin/appconnect/pkg/inbox"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Send delivers ev to the inbox of the addressed process.
func (t *Transport) Send(ev event.Event, addr address.Descriptor, timeout time.Duration, mode event.ReplyMode) (event.Reply, error) {
	switch addr.Type() {
	case address.TypeProcessHandle:
		pid, err := t.pidForHandle(addr)
		if err != nil {
			return event.Reply{}, err
		}
		return t.deliver(pid, ev, timeout, mode)
	case address.TypeUnixPID:
		pid, _ := addr.PID()
		if ok, _ := gopsproc.PidExists(int32(pid)); !ok {
			return event.Reply{}, oserr.New("send", oserr.CodeProcNotFound, fmt.Errorf("no process %d", pid))
		}
		return t.deliver(int(pid), ev, timeout, mode)
	case address.TypeApplicationURL:
		u, _ := addr.URL()
		if t.cfg.Remote == nil {
			return event.Reply{}, oserr.New("send", oserr.CodeEventNotHandled, errors.New("no remote sender configured"))
		}
		return t.cfg.Remote.SendURL(ev, u, timeout, mode)
	default:
		return event.Reply{}, oserr.New("send", oserr.CodeDescNotFound, fmt.Errorf("unsupported address %s", addr))
	}
}

func (t *Transport) pidForHandle(addr address.Descriptor) (int, error) {
	switch addr {
	case address.NullAddress:
		return 0, oserr.New("send", oserr.CodeDescNotFound, errors.New("null address"))
	case address.CurrentProcess:
		return os.Getpid(), nil
	}
	h, _ := addr.ProcessHandle()
	pid := int(h.Low)
	start := procStartUnix(pid)
	if start == 0 || uint32(start) != h.High {
		return 0, oserr.New("send", oserr.CodeProcNotFound, fmt.Errorf("process %s is gone", h))
	}
	return pid, nil
}

// deliver writes one envelope to the inbox socket and, when asked, reads
// the reply. The whole exchange shares one deadline.
func (t *Transport) deliver(pid int, ev event.Event, timeout time.Duration, mode event.ReplyMode) (event.Reply, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	deadline := time.Now().Add(timeout)
	conn, err := t.dialInbox(pid, deadline)
	if err != nil {
		return event.Reply{}, err
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(deadline)

	env := event.Wrap(ev, mode)
	b, err := json.Marshal(env)
	if err != nil {
		return event.Reply{}, oserr.New("send", oserr.CodeIOError, err)
	}
	if _, err := conn.Write(append(b, '\n')); err != nil {
		return event.Reply{}, oserr.New("send", ioErrorCode(err), err)
	}
	t.log.Debug("event sent", "pid", pid, "id", env.ID, "event", ev.Code(), "mode", mode.String())
	if mode == event.NoReply {
		return event.Reply{ID: env.ID}, nil
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return event.Reply{}, oserr.New("send", ioErrorCode(err), err)
	}
	var reply event.Reply
	if err := json.Unmarshal(line, &reply); err != nil {
		return event.Reply{}, oserr.New("send", oserr.CodeIOError, err)
	}
	if reply.Code != 0 {
		return reply, oserr.New("send", reply.Code, errors.New(reply.Error))
	}
	return reply, nil
}

// dialInbox connects to the inbox of pid. A freshly launched process may
// not have opened its socket yet, so a missing socket is retried until the
// deadline while the process is alive.
func (t *Transport) dialInbox(pid int, deadline time.Time) (net.Conn, error) {
	sock := inbox.SocketPath(t.cfg.InboxDir, pid)
	for {
		conn, err := net.DialTimeout("unix", sock, time.Until(deadline))
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, oserr.New("send", dialErrorCode(err), err)
		}
		if !processAlive(pid) {
			return nil, oserr.New("send", oserr.CodeProcNotFound, fmt.Errorf("process %d exited before opening its inbox", pid))
		}
		if time.Until(deadline) <= dialRetryInterval {
			return nil, oserr.New("send", oserr.CodeTimeout, fmt.Errorf("process %d did not open its inbox: %w", pid, err))
		}
		time.Sleep(dialRetryInterval)
	}
}

const dialRetryInterval = 20 * time.Millisecond

func processAlive(pid int) bool {
	if ok, _ := gopsproc.PidExists(int32(pid)); !ok {
		return false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	return !zombie(p)
}

func dialErrorCode(err error) int {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return oserr.CodeTimeout
	}
	return oserr.CodeConnectionFailed
}

func ioErrorCode(err error) int {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return oserr.CodeTimeout
	}
	return oserr.CodeIOError
}
