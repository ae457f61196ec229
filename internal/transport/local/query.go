package local

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/bundle"
	"github.com/loykin/appconnect/internal/oserr"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// listProcesses is replaced in tests.
var listProcesses = gopsproc.Processes

// QueryProcessByPath finds the oldest live process running the bundle's
// executable. A path that does not resolve to a bundle cannot be running,
// so it reports procNotFound and leaves the real diagnosis to Launch.
func (t *Transport) QueryProcessByPath(path string) (address.ProcessHandle, error) {
	b, err := bundle.Open(path)
	if err != nil {
		t.log.Debug("query: bundle does not resolve", "path", path, "error", err)
		return address.ProcessHandle{}, oserr.New("query", oserr.CodeProcNotFound, err)
	}
	m := newMatcher(b.Executable)

	procs, err := listProcesses()
	if err != nil {
		return address.ProcessHandle{}, oserr.New("query", oserr.CodeIOError, err)
	}
	var (
		best      *gopsproc.Process
		bestStart int64
	)
	for _, p := range procs {
		if !m.runs(p) || zombie(p) {
			continue
		}
		start, err := p.CreateTime()
		if err != nil {
			continue
		}
		if best == nil || start < bestStart {
			best, bestStart = p, start
		}
	}
	if best == nil {
		return address.ProcessHandle{}, oserr.New("query", oserr.CodeProcNotFound, errors.New("no process runs "+b.Executable))
	}
	pid := int(best.Pid)
	s := procStartUnix(pid)
	if s == 0 {
		s = bestStart / 1000
	}
	return handleFor(pid, s), nil
}

// executableAliases returns the cleaned path and its symlink target;
// /proc reports the resolved one.
func executableAliases(exe string) []string {
	out := []string{filepath.Clean(exe)}
	if r, err := filepath.EvalSymlinks(exe); err == nil && r != out[0] {
		out = append(out, r)
	}
	return out
}

// matcher recognizes processes running an executable. A script started
// through its shebang shows the interpreter as its executable, so an argv
// match is only trusted when the process runs that interpreter.
type matcher struct {
	targets     []string
	interpreter []string
}

func newMatcher(exe string) matcher {
	m := matcher{targets: executableAliases(exe)}
	if interp := shebangInterpreter(exe); interp != "" {
		m.interpreter = executableAliases(interp)
	}
	return m
}

func (m matcher) runs(p *gopsproc.Process) bool {
	exe, err := p.Exe()
	if err != nil {
		return false
	}
	exe = filepath.Clean(exe)
	if slices.Contains(m.targets, exe) {
		return true
	}
	if !slices.Contains(m.interpreter, exe) {
		return false
	}
	args, err := p.CmdlineSlice()
	if err != nil {
		return false
	}
	// interpreter [option] script
	for i := 1; i < len(args) && i < 3; i++ {
		if filepath.IsAbs(args[i]) && slices.Contains(m.targets, filepath.Clean(args[i])) {
			return true
		}
	}
	return false
}

// shebangInterpreter returns the absolute interpreter path named by the
// #! line of exe, or "" when exe is not a script. "/usr/bin/env prog" is
// resolved through PATH.
func shebangInterpreter(exe string) string {
	f, err := os.Open(exe)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()
	line, err := bufio.NewReader(io.LimitReader(f, 256)).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	rest, ok := strings.CutPrefix(line, "#!")
	if !ok {
		return ""
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	interp := fields[0]
	if filepath.Base(interp) == "env" {
		var prog string
		for _, arg := range fields[1:] {
			if !strings.HasPrefix(arg, "-") {
				prog = arg
				break
			}
		}
		if prog == "" {
			return ""
		}
		lp, err := exec.LookPath(prog)
		if err != nil {
			return ""
		}
		interp = lp
	}
	if !filepath.IsAbs(interp) {
		return ""
	}
	return interp
}

func zombie(p *gopsproc.Process) bool {
	st, err := p.Status()
	if err != nil {
		return false
	}
	return slices.Contains(st, gopsproc.Zombie)
}
