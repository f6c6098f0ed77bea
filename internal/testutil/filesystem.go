package testutil

import (
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	gfs "guardian-go/internal/fs"
)

// NewTestFileService returns a file service over a fresh in-memory filesystem.
func NewTestFileService() (*gfs.FileService, afero.Fs) {
	fsys := afero.NewMemMapFs()
	return gfs.NewFileService(fsys, nil), fsys
}

// WriteFile creates path (and its parents) with content and mtime.
func WriteFile(t *testing.T, fsys afero.Fs, path, content string, mtime time.Time) {
	t.Helper()
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := afero.WriteFile(fsys, path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if err := fsys.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting times on %s: %v", path, err)
	}
}

// MkdirAll creates a directory in fsys.
func MkdirAll(t *testing.T, fsys afero.Fs, path string) {
	t.Helper()
	if err := fsys.MkdirAll(path, 0755); err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
}

// FileEntry is the observable state of one file for comparisons.
type FileEntry struct {
	Content string
	ModTime int64 // unix millis
}

// Snapshot returns every file under root keyed by its slash-separated
// relative path; directories are listed with a trailing slash and no entry
// content.
func Snapshot(t *testing.T, fsys afero.Fs, root string) map[string]FileEntry {
	t.Helper()
	out := make(map[string]FileEntry)
	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			out[rel+"/"] = FileEntry{}
			return nil
		}
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		out[rel] = FileEntry{Content: string(data), ModTime: info.ModTime().UnixMilli()}
		return nil
	})
	if err != nil {
		t.Fatalf("walking %s: %v", root, err)
	}
	return out
}
