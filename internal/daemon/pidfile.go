package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Ning0612/revlink/internal/proc"
)

// PIDFile manages the daemon process ID file.
// It keeps a second daemon from starting and lets `daemon stop` find the running one.
type PIDFile struct {
	path string
}

// NewPIDFile creates a new PID file manager
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the PID file path
func (p *PIDFile) Path() string {
	return p.path
}

// Write writes the current process ID to the PID file
func (p *PIDFile) Write() error {
	// Check if PID file already exists
	if _, err := os.Stat(p.path); err == nil {
		// PID file exists, check if process is running
		if running, _ := p.IsRunning(); running {
			return fmt.Errorf("daemon is already running (PID file exists: %s)", p.path)
		}
		// Stale PID file, remove it
		os.Remove(p.path)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	pid := os.Getpid()
	content := fmt.Sprintf("%d\n", pid)

	if err := os.WriteFile(p.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// Read reads the PID from the PID file
func (p *PIDFile) Read() (int, error) {
	content, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("PID file does not exist: %s", p.path)
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %s", pidStr)
	}

	return pid, nil
}

// Remove removes the PID file
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning checks if the process in the PID file is running
func (p *PIDFile) IsRunning() (bool, error) {
	pid, err := p.Read()
	if err != nil {
		return false, err
	}

	return proc.Alive(pid), nil
}

// Kill sends a termination signal to the process in the PID file
func (p *PIDFile) Kill() error {
	pid, err := p.Read()
	if err != nil {
		return err
	}

	return proc.Terminate(pid)
}

// WaitForExit polls until the recorded process is gone or timeout elapses.
// It returns false if the process is still running after timeout.
func (p *PIDFile) WaitForExit(timeout time.Duration) bool {
	pid, err := p.Read()
	if err != nil {
		return true
	}

	deadline := time.Now().Add(timeout)
	for proc.Alive(pid) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
	return true
}
