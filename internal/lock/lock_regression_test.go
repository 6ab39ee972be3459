package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Ning0612/revlink/internal/testutil"
)

// TestAcquireTwice_ThenRelease is a regression test for the bug where
// re-acquiring with different Job updates file but not l.info,
// causing Release to fail with "lock stolen" error
func TestAcquireTwice_ThenRelease(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	lock, err := NewFileLock(dir)
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	// First acquire
	if err := lock.Acquire("cron"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	// Second acquire with different job (should succeed)
	if err := lock.Acquire("once"); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}

	// Release should succeed (NOT fail with "lock stolen")
	if err := lock.Release(); err != nil {
		t.Fatalf("Release after re-acquire failed: %v", err)
	}

	// Verify lock file is gone
	lockPath := filepath.Join(dir, LockFileName)
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Lock file still exists after release")
	}
}

// TestAcquireTwice_JobPersisted verifies Job is properly updated
func TestAcquireTwice_JobPersisted(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	lock, err := NewFileLock(dir)
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	// Acquire for the cron job
	if err := lock.Acquire("cron"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	// Re-acquire for the one-shot job
	if err := lock.Acquire("once"); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}

	// Read lock info and verify Job was updated
	info, err := lock.readLockInfo()
	if err != nil {
		t.Fatalf("Failed to read lock info: %v", err)
	}

	if info.Job != "once" {
		t.Errorf("Expected Job 'once', got %q", info.Job)
	}

	// Also verify internal state matches
	if lock.info.Job != "once" {
		t.Errorf("Internal l.info.Job should be 'once', got %q", lock.info.Job)
	}

	lock.Release()
}
