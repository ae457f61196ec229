//go:build windows

package local

import (
	"os/exec"
	"syscall"

	"github.com/loykin/appconnect/internal/transport"
)

const (
	createNewProcessGroup = 0x00000200
	detachedProcess       = 0x00000008
)

func configureSysProcAttr(cmd *exec.Cmd, flags transport.LaunchFlags) {
	cf := uint32(createNewProcessGroup)
	if flags.Has(transport.LaunchDontSwitch) {
		cf |= detachedProcess
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: cf}
}
