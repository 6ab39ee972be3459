//go:build !windows

package proc

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func alive(pid int) bool {
	// Signal 0 checks for existence without delivering anything
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func terminate(pid int) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}
