package adapter

import "github.com/Ning0612/revlink/internal/domain"

// Adapter defines the filesystem operations reverse linking needs.
// Implementations return domain-level errors (domain.ErrNotFound,
// domain.ErrPermissionDenied, ...) wrapped around the underlying cause.
type Adapter interface {
	// Stat returns metadata for path, following symbolic links
	// Returns domain.ErrNotFound if path (or a link's target) doesn't exist
	Stat(path string) (domain.FileInfo, error)

	// Lstat returns metadata for path without following a final symbolic link
	// Returns domain.ErrNotFound if nothing occupies path
	Lstat(path string) (domain.FileInfo, error)

	// Exists reports whether path exists, following symbolic links.
	// A dangling link does not exist.
	Exists(path string) (bool, error)

	// Readlink returns the raw target stored in the link at path
	// Returns domain.ErrNotSymlink if path is not a link
	Readlink(path string) (string, error)

	// Resolve returns the absolute path with every symbolic link evaluated
	Resolve(path string) (string, error)

	// Symlink creates a link at linkPath pointing to target
	// Returns domain.ErrAlreadyExists if linkPath is occupied
	Symlink(target, linkPath string) error

	// Remove removes a file, link or empty directory
	Remove(path string) error

	// MkdirAll creates a directory and any necessary parents
	// No error if directory already exists
	MkdirAll(path string) error
}
