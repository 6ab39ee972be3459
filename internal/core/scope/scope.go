// Package scope decides whether a source directory is one the operator opted into.
package scope

import (
	"path/filepath"
	"strings"
)

// Filter holds the enabled source directories.
// An empty filter puts every directory in scope.
type Filter struct {
	dirs []string
}

// New creates a filter from the configured directories.
// Blank entries are ignored and every entry is cleaned.
func New(dirs []string) *Filter {
	cleaned := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		cleaned = append(cleaned, filepath.Clean(d))
	}
	return &Filter{dirs: cleaned}
}

// InScope reports whether sourceDir equals or lies below an enabled directory.
// Comparison is on whole path segments: /data/movie2 is not below /data/movie.
func (f *Filter) InScope(sourceDir string) bool {
	if len(f.dirs) == 0 {
		return true
	}
	sourceDir = filepath.Clean(sourceDir)
	for _, d := range f.dirs {
		if isWithin(d, sourceDir) {
			return true
		}
	}
	return false
}

// isWithin reports whether candidate is dir or a descendant of dir
func isWithin(dir, candidate string) bool {
	if filepath.IsAbs(dir) != filepath.IsAbs(candidate) {
		return false
	}
	rel, err := filepath.Rel(dir, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
