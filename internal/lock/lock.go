package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/proc"
)

const (
	// LockFileName is the name of the lock file
	LockFileName = ".revlink.lock"
	// DefaultStaleTimeout is the default duration after which a lock held from another host is considered stale
	DefaultStaleTimeout = 30 * time.Minute
)

// LockInfo contains metadata about the lock holder
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Job       string    `json:"job,omitempty"`
}

// FileLock is a file-based lock that keeps two reconciliation scans
// (daemon and CLI, or two CLI invocations) from running at the same time
type FileLock struct {
	lockPath     string
	staleTimeout time.Duration
	info         *LockInfo
}

// NewFileLock creates a new file lock instance in lockDir
func NewFileLock(lockDir string) (*FileLock, error) {
	if lockDir == "" {
		return nil, fmt.Errorf("lock directory cannot be empty")
	}

	// Ensure lock directory exists
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &FileLock{
		lockPath:     filepath.Join(lockDir, LockFileName),
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.lockPath
}

// SetStaleTimeout sets the duration after which a foreign-host lock is considered stale
func (l *FileLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Acquire attempts to acquire the lock for job.
// Returns a *LockError if the lock is already held by another process or instance.
func (l *FileLock) Acquire(job string) error {
	// Re-acquiring from the holding instance only relabels the job
	if l.info != nil {
		existingInfo, err := l.readLockInfo()
		if err == nil && l.isHeldByThisInstance(existingInfo) {
			existingInfo.Job = job
			if err := l.writeLockInfo(existingInfo); err != nil {
				return err
			}
			// Keep l.info in step with the file, otherwise Release() reports a stolen lock
			l.info.Job = job
			return nil
		}
	}

	existingInfo, err := l.readLockInfo()
	if err == nil {
		if !l.isStale(existingInfo) {
			return &LockError{
				Holder: existingInfo,
				Reason: "lock is held by another process",
			}
		}
		if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	info := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Job:       job,
	}

	// O_EXCL makes creation atomic between competing processes
	file, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			existingInfo, readErr := l.readLockInfo()
			if readErr != nil {
				return &LockError{Reason: "lock acquired by another process during acquisition"}
			}
			return &LockError{
				Holder: existingInfo,
				Reason: "lock acquired by another process during acquisition",
			}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(info); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.info = info
	return nil
}

// Release releases the lock
func (l *FileLock) Release() error {
	if l.info == nil {
		return nil // Not holding lock
	}

	existingInfo, err := l.readLockInfo()
	if err != nil {
		l.info = nil
		return nil // Lock file doesn't exist, consider it released
	}

	if !l.isHeldByThisInstance(existingInfo) {
		l.info = nil
		return fmt.Errorf("lock was stolen by another process")
	}

	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	l.info = nil
	return nil
}

// With acquires the lock for job, runs fn and releases the lock
func (l *FileLock) With(job string, fn func() error) error {
	if err := l.Acquire(job); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// IsLocked checks if a live lock is currently held
func (l *FileLock) IsLocked() bool {
	info, err := l.readLockInfo()
	if err != nil {
		return false
	}
	return !l.isStale(info)
}

// GetHolder returns information about the current lock holder
func (l *FileLock) GetHolder() (*LockInfo, error) {
	info, err := l.readLockInfo()
	if err != nil {
		return nil, err
	}
	if l.isStale(info) {
		return nil, fmt.Errorf("lock is stale")
	}
	return info, nil
}

// ForceRelease forcibly removes the lock file
// Use with caution - only when certain the lock holder has crashed
func (l *FileLock) ForceRelease() error {
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	l.info = nil
	return nil
}

func (l *FileLock) readLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}

	return &info, nil
}

func (l *FileLock) writeLockInfo(info *LockInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.lockPath, data, 0644)
}

// isStale reports whether the holder is gone.
// On the same host only a dead process makes a lock stale; the timeout
// applies to locks written from another host, where the PID cannot be checked.
func (l *FileLock) isStale(info *LockInfo) bool {
	hostname, _ := os.Hostname()

	if info.Hostname == hostname {
		return !proc.Alive(info.PID)
	}

	return time.Since(info.StartTime) > l.staleTimeout
}

func (l *FileLock) isHeldByCurrentProcess(info *LockInfo) bool {
	hostname, _ := os.Hostname()
	return info.PID == os.Getpid() && info.Hostname == hostname
}

// isHeldByThisInstance checks if the lock is held by this specific FileLock instance
func (l *FileLock) isHeldByThisInstance(info *LockInfo) bool {
	if l.info == nil {
		return false
	}
	return l.isHeldByCurrentProcess(info) &&
		l.info.StartTime.Equal(info.StartTime) &&
		l.info.Job == info.Job
}

// LockError represents an error when lock cannot be acquired.
// It matches domain.ErrScanInProgress under errors.Is.
type LockError struct {
	Holder *LockInfo
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("cannot acquire lock: %s (held by PID %d on %s since %s, job: %s)",
			e.Reason,
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
			e.Holder.Job,
		)
	}
	return fmt.Sprintf("cannot acquire lock: %s", e.Reason)
}

func (e *LockError) Unwrap() error {
	return domain.ErrScanInProgress
}

// IsLockError checks if an error is a LockError
func IsLockError(err error) bool {
	var lockErr *LockError
	return errors.As(err, &lockErr)
}
