//go:build !windows

package local

import (
	"os/exec"
	"syscall"

	"github.com/loykin/appconnect/internal/transport"
)

// configureSysProcAttr detaches a background launch into its own session
// so it never takes the controlling terminal. Otherwise the child only
// gets its own process group.
func configureSysProcAttr(cmd *exec.Cmd, flags transport.LaunchFlags) {
	attrs := &syscall.SysProcAttr{}
	if flags.Has(transport.LaunchDontSwitch) {
		attrs.Setsid = true
	} else {
		attrs.Setpgid = true
	}
	cmd.SysProcAttr = attrs
}
