package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TempDir creates a temporary directory for testing
// It returns the directory path and a cleanup function
func TempDir(t *testing.T) (string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "revlink-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	// Resolve so paths compare equal to what the filesystem reports (macOS /var -> /private/var)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

// CreateTestFile creates a test file with the given content, creating parent directories
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	return path
}

// CreateMediaTree creates empty files for every relative name under dir
// and returns their absolute paths in the same order
func CreateMediaTree(t *testing.T, dir string, names ...string) []string {
	t.Helper()

	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, CreateTestFile(t, dir, name, nil))
	}
	return paths
}

// CreateSymlink creates linkPath pointing at target, creating parent directories.
// The test is skipped on platforms where symlinks cannot be created.
func CreateSymlink(t *testing.T, target, linkPath string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(linkPath), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.Symlink(target, linkPath); err != nil {
		if os.IsPermission(err) {
			t.Skipf("symlinks not permitted: %v", err)
		}
		t.Fatalf("failed to create symlink: %v", err)
	}
}

// ReadLink returns the stored target of linkPath, failing the test if it is not a symlink
func ReadLink(t *testing.T, linkPath string) string {
	t.Helper()

	target, err := os.Readlink(linkPath)
	if err != nil {
		t.Fatalf("expected symlink at %s: %v", linkPath, err)
	}
	return target
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		<-ticker.C
	}
}

// AssertEventually asserts that a condition becomes true within timeout
func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()

	if !WaitForCondition(timeout, condition) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("condition not met within %v: %v", timeout, msgAndArgs[0])
		} else {
			t.Fatalf("condition not met within %v", timeout)
		}
	}
}

// RandomString generates a random string of the given length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
