package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// FileSystemVault is a filesystem-based implementation of the BlobStore interface.
// It stores each blob as a file named by its digest:
//
//	<root>/
//	  blobs/
//	    <owner>/<algorithm>/<digest[:2]>/<digest>
type FileSystemVault struct {
	root    string
	blobDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	blobDir := filepath.Join(root, "blobs")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileSystemVault{root: root, blobDir: blobDir}, nil
}

// blobPath maps ref onto the vault layout.
func (v *FileSystemVault) blobPath(ref model.BlobIdentifier) (string, error) {
	if err := checkRef(ref); err != nil {
		return "", err
	}
	dir := filepath.Dir(filepath.FromSlash(ref.Key()))
	return filepath.Join(v.blobDir, dir, ref.Hash.Digest[:2], ref.Hash.Digest), nil
}

// Has reports whether ref is stored.
func (v *FileSystemVault) Has(ref model.BlobIdentifier) (bool, error) {
	path, err := v.blobPath(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking blob: %w", err)
	}
	return true, nil
}

// Insert stores content under ref. The operation is idempotent: an
// existing blob is left in place and content is not read.
func (v *FileSystemVault) Insert(ref model.BlobIdentifier, content guardian.BlobSource) error {
	path, err := v.blobPath(ref)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	return v.writeFile(path, content)
}

// Fetch opens the blob file for streaming.
func (v *FileSystemVault) Fetch(ref model.BlobIdentifier) (guardian.BlobSource, error) {
	path, err := v.blobPath(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(ref)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}
	return guardian.NewReaderBlob(f, uint64(info.Size())), nil
}

// Delete removes the blob file.
func (v *FileSystemVault) Delete(ref model.BlobIdentifier) error {
	path, err := v.blobPath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(ref)
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// writeFile writes content to destPath using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, content guardian.BlobSource) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := guardian.CheckedCopy(tmpFile, content); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Concurrent inserts of the same ref race to the same bytes; the
	// last rename wins harmlessly.
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements guardian.BlobStore
var _ guardian.BlobStore = (*FileSystemVault)(nil)
