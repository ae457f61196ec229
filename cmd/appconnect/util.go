package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/loykin/appconnect"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

// parseAddress reads the address forms accepted on the command line:
//
//	pid:<pid>            a unix process id
//	psn:<high>:<low>     a process handle
//	current | null       the sentinel handles
//	<scheme>://...       an application URL
//
// Absolute application paths are not addresses; callers resolve them.
func parseAddress(s string) (appconnect.Descriptor, error) {
	switch {
	case s == "current":
		return appconnect.CurrentProcess, nil
	case s == "null":
		return appconnect.NullAddress, nil
	case strings.Contains(s, "://"):
		return appconnect.RemoteApp(s), nil
	case strings.HasPrefix(s, "pid:"):
		pid, err := strconv.ParseUint(strings.TrimPrefix(s, "pid:"), 10, 32)
		if err != nil {
			return appconnect.Descriptor{}, fmt.Errorf("invalid pid in %q", s)
		}
		return appconnect.LocalAppByPID(uint32(pid)), nil
	case strings.HasPrefix(s, "psn:"):
		parts := strings.Split(strings.TrimPrefix(s, "psn:"), ":")
		if len(parts) != 2 {
			return appconnect.Descriptor{}, fmt.Errorf("want psn:<high>:<low>, got %q", s)
		}
		hi, err1 := strconv.ParseUint(parts[0], 10, 32)
		lo, err2 := strconv.ParseUint(parts[1], 10, 32)
		if err1 != nil || err2 != nil {
			return appconnect.Descriptor{}, fmt.Errorf("invalid process handle %q", s)
		}
		return appconnect.FromProcessHandle(appconnect.ProcessHandle{High: uint32(hi), Low: uint32(lo)}), nil
	}
	return appconnect.Descriptor{}, fmt.Errorf("unrecognized address %q", s)
}
