package local

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/bundle"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/loykin/appconnect/internal/transport"
	"github.com/loykin/appconnect/pkg/inbox"
)

// Launch starts the bundle at path with ev in its environment. Only one
// launch per executable may be in flight on this transport.
func (t *Transport) Launch(path string, ev event.Event, flags transport.LaunchFlags) (address.ProcessHandle, error) {
	b, err := bundle.Open(path)
	if err != nil {
		return address.ProcessHandle{}, err
	}
	if !t.begin(b.Executable) {
		return address.ProcessHandle{}, oserr.New("launch", oserr.CodeLaunchInProgress, nil)
	}
	defer t.end(b.Executable)

	args := append([]string(nil), b.Args...)
	if !flags.Has(transport.LaunchNoFileFlags) {
		args = append(args, b.Path)
	}
	// #nosec G204 -- the executable comes from a resolved bundle
	cmd := exec.Command(b.Executable, args...)
	cmd.Dir = b.WorkDir
	cmd.Env = t.cfg.Env.Merge(b.Env, []string{
		inbox.EnvLaunchEvent + "=" + string(ev.Encoded()),
		inbox.EnvInboxDir + "=" + t.cfg.InboxDir,
	})
	configureSysProcAttr(cmd, flags)
	outW, errW := t.outputs(b.Name)
	cmd.Stdout, cmd.Stderr = outW, errW

	if err := cmd.Start(); err != nil {
		closeAll(outW, errW)
		return address.ProcessHandle{}, oserr.New("launch", startErrorCode(err), err)
	}
	pid := cmd.Process.Pid
	t.log.Info("launched application", "name", b.Name, "pid", pid, "event", ev.Code(), "flags", flags.String())

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		closeAll(outW, errW)
		close(exited)
		t.log.Debug("launched application exited", "name", b.Name, "pid", pid, "error", err)
	}()

	if !flags.Has(transport.LaunchContinue) {
		if err := t.awaitInbox(pid, exited); err != nil {
			return address.ProcessHandle{}, err
		}
	}
	start := procStartUnix(pid)
	if start == 0 {
		start = time.Now().Unix()
	}
	return handleFor(pid, start), nil
}

// awaitInbox blocks until the child opens its inbox socket or exits.
func (t *Transport) awaitInbox(pid int, exited <-chan struct{}) error {
	sock := inbox.SocketPath(t.cfg.InboxDir, pid)
	deadline := time.NewTimer(t.cfg.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err := os.Stat(sock); err == nil {
			return nil
		}
		select {
		case <-exited:
			return oserr.New("launch", oserr.CodeUnknown, fmt.Errorf("process %d exited during launch", pid))
		case <-deadline.C:
			return oserr.New("launch", oserr.CodeTimeout, fmt.Errorf("process %d did not open its inbox", pid))
		case <-tick.C:
		}
	}
}

func (t *Transport) outputs(name string) (io.WriteCloser, io.WriteCloser) {
	lc := t.cfg.Log
	if lc.Dir == "" && lc.StdoutPath == "" && lc.StderrPath == "" {
		return nil, nil
	}
	if lc.Dir != "" {
		_ = os.MkdirAll(lc.Dir, 0o750)
	}
	o, e, err := lc.Writers(name)
	if err != nil {
		t.log.Warn("launch output capture disabled", "name", name, "error", err)
		return nil, nil
	}
	return o, e
}

func closeAll(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}

func startErrorCode(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, exec.ErrNotFound), errors.Is(err, syscall.ENOEXEC):
		return oserr.CodeNoExecutable
	case errors.Is(err, fs.ErrPermission):
		return oserr.CodeNoLaunchPermission
	default:
		return oserr.CodeUnknown
	}
}
