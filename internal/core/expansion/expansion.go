// Package expansion turns a transfer history record into link requests.
package expansion

import (
	"fmt"
	"path/filepath"

	"github.com/Ning0612/revlink/internal/adapter"
	"github.com/Ning0612/revlink/internal/domain"
)

// Options configures record expansion
type Options struct {
	// RelaxedDirectoryMode accepts directory records whose source directory
	// is gone, as long as every file lies directly under it.
	RelaxedDirectoryMode bool
}

// Expander expands history records against a filesystem
type Expander struct {
	fs   adapter.Adapter
	opts Options
}

// New creates an expander
func New(fs adapter.Adapter, opts Options) *Expander {
	return &Expander{fs: fs, opts: opts}
}

// Expand returns the link requests a record describes.
//
// A record naming exactly its own source is a single-file move. Otherwise it
// is a directory move: each file keeps its original path as the source and
// its base name under the destination directory. Records of any other shape
// yield domain.ErrMalformedRecord and no requests.
func (e *Expander) Expand(record domain.TransferRecord) ([]domain.LinkRequest, error) {
	if record.IsSingleFile() {
		return []domain.LinkRequest{{Source: record.Source, Destination: record.Destination}}, nil
	}

	if !e.isDir(record.Destination) {
		return nil, malformed(record, "destination is not a directory")
	}
	if !e.isDir(record.Source) {
		if !e.opts.RelaxedDirectoryMode {
			return nil, malformed(record, "source is not a directory")
		}
		if err := filesUnder(record); err != nil {
			return nil, err
		}
	}

	requests := make([]domain.LinkRequest, 0, len(record.Files))
	for _, f := range record.Files {
		requests = append(requests, domain.LinkRequest{
			Source:      f,
			Destination: filepath.Join(record.Destination, filepath.Base(f)),
		})
	}
	return requests, nil
}

func (e *Expander) isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := e.fs.Stat(path)
	return err == nil && info.IsDir()
}

// filesUnder checks that every file sits directly in the record's source directory
func filesUnder(record domain.TransferRecord) error {
	if len(record.Files) == 0 {
		return malformed(record, "source directory is gone and no files are listed")
	}
	src := filepath.Clean(record.Source)
	for _, f := range record.Files {
		if filepath.Dir(filepath.Clean(f)) != src {
			return malformed(record, fmt.Sprintf("file %s is not directly under %s", f, src))
		}
	}
	return nil
}

func malformed(record domain.TransferRecord, reason string) error {
	return fmt.Errorf("%w: record %d (%s -> %s): %s",
		domain.ErrMalformedRecord, record.ID, record.Source, record.Destination, reason)
}
