//go:build !windows

package runner

import (
	"os"
	"syscall"
)

// terminatingSignal extracts the signal number that killed a process, or
// 0 if it exited normally (no signal involved).
func terminatingSignal(ps *os.ProcessState) int {
	status, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return 0
	}
	return int(status.Signal())
}
