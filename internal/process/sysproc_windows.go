//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// taskkillNotFound is taskkill's exit code when no process matches the pid.
const taskkillNotFound = 128

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// setRawCommandLine hands line to CreateProcess as is. Without it exec
// quotes the command as a single argument, escaping embedded quotes with
// backslashes that cmd.exe does not understand.
func setRawCommandLine(cmd *exec.Cmd, line string) {
	cmd.SysProcAttr.CmdLine = line
}

// KillGroup kills the tree rooted at pgid. Windows has no process group
// kill, so descendants of an exited root are out of reach.
func KillGroup(pgid int) (killed bool, err error) {
	return KillTree(pgid)
}

// KillTree force-kills pid and its descendants with taskkill.
// killed is false when the process no longer exists, which is not an error.
func KillTree(pid int) (killed bool, err error) {
	if pid <= 0 {
		return false, nil
	}
	err = exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == taskkillNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func extractExitCode(state *os.ProcessState, err error) int {
	if state == nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if err == nil {
				return 0
			}
			return 1
		}
		state = exitErr.ProcessState
	}
	return state.ExitCode()
}
