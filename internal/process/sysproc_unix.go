//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the command in its own process group so the shell
// and everything it spawned can be killed together.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// setRawCommandLine is Windows only; exec passes argv through unchanged here.
func setRawCommandLine(*exec.Cmd, string) {}

// KillGroup sends SIGKILL to the process group pgid. It is for groups the
// runner created, whose id stays valid after the leader has exited while
// any member is left. killed is false when no member exists.
func KillGroup(pgid int) (killed bool, err error) {
	if pgid <= 0 {
		return false, nil
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// KillTree kills a pid the runner did not start: its process group when
// pid leads one, then pid itself. killed is false when the process no
// longer exists, which is not an error.
func KillTree(pid int) (killed bool, err error) {
	if pid <= 0 {
		return false, nil
	}

	// Only signal the group when pid leads it; a foreign pid may share the
	// harness's own group.
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid == pid {
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err == nil {
			killed = true
		}
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return killed, nil
		}
		return killed, err
	}
	return true, nil
}

// extractExitCode returns the exit code of a finished process.
// A signal exit is reported as 128 + signal number, as shells do.
func extractExitCode(state *os.ProcessState, err error) int {
	if state == nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if err == nil {
				return 0
			}
			// Unknown error, assume exit code 1
			return 1
		}
		state = exitErr.ProcessState
	}

	if status, ok := state.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return 128 + int(status.Signal())
		}
		return status.ExitStatus()
	}
	return state.ExitCode()
}
