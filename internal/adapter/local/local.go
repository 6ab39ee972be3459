package local

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"github.com/Ning0612/revlink/internal/adapter"
	"github.com/Ning0612/revlink/internal/domain"
)

// Adapter implements adapter.Adapter for the local filesystem
type Adapter struct {
	fs   afero.Fs
	link afero.Symlinker
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an adapter over the host filesystem
func New() *Adapter {
	osFs := afero.NewOsFs()
	return &Adapter{fs: osFs, link: osFs.(afero.Symlinker)}
}

// NewWithFs creates an adapter over an arbitrary afero filesystem.
// The filesystem must support symbolic links and must expose real host paths,
// since Resolve evaluates links against the host.
func NewWithFs(fsys afero.Fs) (*Adapter, error) {
	link, ok := fsys.(afero.Symlinker)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSymlinkUnsupported, fsys.Name())
	}
	return &Adapter{fs: fsys, link: link}, nil
}

// Stat returns metadata for a path, following links
func (a *Adapter) Stat(path string) (domain.FileInfo, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		return domain.FileInfo{}, a.mapError("stat", path, err)
	}
	return a.fileInfoFromOS(path, info), nil
}

// Lstat returns metadata for a path without following a final link
func (a *Adapter) Lstat(path string) (domain.FileInfo, error) {
	info, _, err := a.link.LstatIfPossible(path)
	if err != nil {
		return domain.FileInfo{}, a.mapError("lstat", path, err)
	}
	return a.fileInfoFromOS(path, info), nil
}

// Exists checks if a path exists, following links
func (a *Adapter) Exists(path string) (bool, error) {
	_, err := a.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) || isNotDirErr(err) {
		return false, nil
	}
	return false, a.mapError("stat", path, err)
}

// Readlink returns the raw target of the link at path
func (a *Adapter) Readlink(path string) (string, error) {
	target, err := a.link.ReadlinkIfPossible(path)
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) && errors.Is(pathErr.Err, syscall.EINVAL) {
			return "", fmt.Errorf("%w: %s", domain.ErrNotSymlink, path)
		}
		return "", a.mapError("readlink", path, err)
	}
	return target, nil
}

// Resolve evaluates every link in path and returns an absolute path
func (a *Adapter) Resolve(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", a.mapError("resolve", path, err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}

// Symlink creates linkPath pointing at target
func (a *Adapter) Symlink(target, linkPath string) error {
	if err := a.link.SymlinkIfPossible(target, linkPath); err != nil {
		return a.mapError("symlink", linkPath, err)
	}
	return nil
}

// Remove removes a file, link or empty directory
func (a *Adapter) Remove(path string) error {
	if err := a.fs.Remove(path); err != nil {
		return a.mapError("remove", path, err)
	}
	return nil
}

// MkdirAll creates a directory and any necessary parents
func (a *Adapter) MkdirAll(path string) error {
	if err := a.fs.MkdirAll(path, 0755); err != nil {
		return a.mapError("mkdir", path, err)
	}
	return nil
}

// fileInfoFromOS converts fs.FileInfo to domain.FileInfo
func (a *Adapter) fileInfoFromOS(path string, info fs.FileInfo) domain.FileInfo {
	fileType := domain.FileTypeOther
	mode := info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		fileType = domain.FileTypeSymlink
	case mode.IsDir():
		fileType = domain.FileTypeDirectory
	case mode.IsRegular():
		fileType = domain.FileTypeRegular
	}

	return domain.FileInfo{
		Path:    path,
		Type:    fileType,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// mapError converts OS errors to domain errors, keeping the cause in the chain
func (a *Adapter) mapError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var sentinel error
	switch {
	case os.IsNotExist(err), isNotDirErr(err):
		sentinel = domain.ErrNotFound
	case os.IsPermission(err):
		sentinel = domain.ErrPermissionDenied
	case os.IsExist(err):
		sentinel = domain.ErrAlreadyExists
	case errors.Is(err, afero.ErrNoSymlink), errors.Is(err, afero.ErrNoReadlink):
		sentinel = domain.ErrSymlinkUnsupported
	}

	if sentinel == nil {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, path, sentinel, err)
}

// isNotDirErr reports ENOTDIR, raised when a path component is a regular file
func isNotDirErr(err error) bool {
	if errors.Is(err, syscall.ENOTDIR) {
		return true
	}
	return strings.Contains(err.Error(), "not a directory")
}
