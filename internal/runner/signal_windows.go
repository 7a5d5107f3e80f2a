//go:build windows

package runner

import "os"

// terminatingSignal is always 0 on windows: there is no POSIX signal
// concept, and os.ProcessState.Sys does not expose a wait status.
func terminatingSignal(ps *os.ProcessState) int {
	return 0
}
