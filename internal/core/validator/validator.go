// Package validator checks whether a path already holds a correct reverse link.
package validator

import (
	"path/filepath"

	"github.com/Ning0612/revlink/internal/adapter"
)

// Validator answers link questions against a filesystem adapter
type Validator struct {
	fs adapter.Adapter
}

// New creates a validator
func New(fs adapter.Adapter) *Validator {
	return &Validator{fs: fs}
}

// IsValidLink reports whether source is a symbolic link that resolves to
// destination and destination exists. A dangling link is never valid.
func (v *Validator) IsValidLink(source, destination string) bool {
	if ok, err := v.fs.Exists(source); err != nil || !ok {
		return false
	}

	info, err := v.fs.Lstat(source)
	if err != nil || !info.IsSymlink() {
		return false
	}

	if !v.PointsAt(source, destination) {
		return false
	}

	ok, err := v.fs.Exists(destination)
	return err == nil && ok
}

// PointsAt reports whether the link at link targets path itself.
// The stored target is checked first; when it differs textually (symlinked
// parent directories) both sides are compared with their parent directories
// resolved. The last component is never followed, so two links to the same
// file do not point at each other.
func (v *Validator) PointsAt(link, path string) bool {
	target, err := v.fs.Readlink(link)
	if err != nil {
		return false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}
	if filepath.Clean(target) == filepath.Clean(path) {
		return true
	}

	canonicalTarget, ok := v.canonical(target)
	if !ok {
		return false
	}
	canonicalPath, ok := v.canonical(path)
	if !ok {
		return false
	}
	return canonicalTarget == canonicalPath
}

// canonical resolves the parent directory of path and keeps its base name
func (v *Validator) canonical(path string) (string, bool) {
	path = filepath.Clean(path)
	dir, err := v.fs.Resolve(filepath.Dir(path))
	if err != nil {
		return "", false
	}
	return filepath.Join(dir, filepath.Base(path)), true
}
