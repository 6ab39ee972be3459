package expansion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/revlink/internal/adapter/local"
	"github.com/Ning0612/revlink/internal/domain"
)

func TestExpand_SingleFile(t *testing.T) {
	e := New(local.New(), Options{})
	record := domain.TransferRecord{
		ID:          1,
		Source:      "/data/in/a.mkv",
		Destination: "/lib/a.mkv",
		Files:       []string{"/data/in/a.mkv"},
	}

	requests, err := e.Expand(record)
	require.NoError(t, err)
	assert.Equal(t, []domain.LinkRequest{{Source: "/data/in/a.mkv", Destination: "/lib/a.mkv"}}, requests)
}

func TestExpand_Directory(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "in", "Show")
	dst := filepath.Join(root, "lib", "Show")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))

	record := domain.TransferRecord{
		ID:          2,
		Source:      src,
		Destination: dst,
		Files:       []string{filepath.Join(src, "e1.mkv"), filepath.Join(src, "sub", "e2.mkv")},
	}

	requests, err := New(local.New(), Options{}).Expand(record)
	require.NoError(t, err)
	assert.Equal(t, []domain.LinkRequest{
		{Source: filepath.Join(src, "e1.mkv"), Destination: filepath.Join(dst, "e1.mkv")},
		{Source: filepath.Join(src, "sub", "e2.mkv"), Destination: filepath.Join(dst, "e2.mkv")},
	}, requests)
}

func TestExpand_DirectoryWithoutFiles(t *testing.T) {
	root := t.TempDir()
	record := domain.TransferRecord{ID: 3, Source: root, Destination: root}

	requests, err := New(local.New(), Options{}).Expand(record)
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestExpand_Malformed(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "dir")
	file := filepath.Join(root, "file.mkv")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(file, nil, 0644))

	tests := []struct {
		name   string
		record domain.TransferRecord
	}{
		{
			name:   "source missing",
			record: domain.TransferRecord{ID: 4, Source: filepath.Join(root, "gone"), Destination: dir, Files: []string{"x"}},
		},
		{
			name:   "destination missing",
			record: domain.TransferRecord{ID: 5, Source: dir, Destination: filepath.Join(root, "gone"), Files: []string{"x"}},
		},
		{
			name:   "source is a file",
			record: domain.TransferRecord{ID: 6, Source: file, Destination: dir, Files: []string{"other"}},
		},
		{
			name:   "empty paths",
			record: domain.TransferRecord{ID: 7},
		},
	}

	e := New(local.New(), Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests, err := e.Expand(tt.record)
			assert.ErrorIs(t, err, domain.ErrMalformedRecord)
			assert.Nil(t, requests)
		})
	}
}

func TestExpand_RelaxedDirectoryMode(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "in", "Show")
	dst := filepath.Join(root, "lib", "Show")
	require.NoError(t, os.MkdirAll(dst, 0755))

	record := domain.TransferRecord{
		ID:          8,
		Source:      src,
		Destination: dst,
		Files:       []string{filepath.Join(src, "e1.mkv")},
	}

	_, err := New(local.New(), Options{}).Expand(record)
	assert.ErrorIs(t, err, domain.ErrMalformedRecord, "strict mode needs both directories")

	relaxed := New(local.New(), Options{RelaxedDirectoryMode: true})
	requests, err := relaxed.Expand(record)
	require.NoError(t, err)
	assert.Equal(t, []domain.LinkRequest{
		{Source: filepath.Join(src, "e1.mkv"), Destination: filepath.Join(dst, "e1.mkv")},
	}, requests)

	record.Files = append(record.Files, filepath.Join(root, "elsewhere", "e2.mkv"))
	_, err = relaxed.Expand(record)
	assert.ErrorIs(t, err, domain.ErrMalformedRecord, "files outside the source directory are rejected")

	record.Files = nil
	_, err = relaxed.Expand(record)
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)
}
