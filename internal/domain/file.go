package domain

import "time"

// FileType represents the type of a filesystem entry
type FileType int

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeSymlink
	FileTypeOther
)

// String returns a short name for the type
func (t FileType) String() string {
	switch t {
	case FileTypeRegular:
		return "file"
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// FileInfo represents metadata about a filesystem entry
type FileInfo struct {
	// Path is the path the entry was looked up by
	Path string

	// Type indicates if this is a file, directory, symlink or something else.
	// Entries obtained by following links never report FileTypeSymlink.
	Type FileType

	// Size in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time
	ModTime time.Time
}

// IsDir returns true if this is a directory
func (f FileInfo) IsDir() bool {
	return f.Type == FileTypeDirectory
}

// IsFile returns true if this is a regular file
func (f FileInfo) IsFile() bool {
	return f.Type == FileTypeRegular
}

// IsSymlink returns true if this is a symbolic link
func (f FileInfo) IsSymlink() bool {
	return f.Type == FileTypeSymlink
}
