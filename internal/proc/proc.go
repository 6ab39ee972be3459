// Package proc inspects and signals other processes by PID. The scan lock
// uses it to detect a holder that died, the PID file to stop the daemon.
package proc

import "fmt"

// Alive reports whether a process with the given PID exists.
// A process we may not signal still counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return alive(pid)
}

// Terminate asks the process to exit
func Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return terminate(pid)
}
