//go:build windows

package worker

import (
	"os"
	"os/exec"
)

const (
	shellPath = "cmd"
	shellArg  = "/c"
)

func configureSysProcAttr(_ *exec.Cmd) {}

// terminateGroup has no graceful-signal equivalent on Windows; both paths
// fall through to os.Process.Kill.
func terminateGroup(pid int) { killGroup(pid) }

func killGroup(pid int) {
	p, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = p.Kill()
}

func probeAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal(0) is not supported on Windows; FindProcess succeeding is the
	// best available cheap probe, refined by the reaper's exited flag.
	_ = p
	return true
}
