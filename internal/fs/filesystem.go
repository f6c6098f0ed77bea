package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// FileService is the afero-backed implementation of guardian.FileService.
// Production code runs it over the OS filesystem; tests use an in-memory one.
type FileService struct {
	fs     afero.Fs
	ignore []string
}

// NewOSFileService creates a file service over the real filesystem.
// ignore holds extra patterns applied on top of each root's .guardianignore.
func NewOSFileService(ignore []string) *FileService {
	return NewFileService(afero.NewOsFs(), ignore)
}

// NewFileService creates a file service over fsys.
func NewFileService(fsys afero.Fs, ignore []string) *FileService {
	return &FileService{fs: fsys, ignore: ignore}
}

// Fs exposes the underlying filesystem.
func (s *FileService) Fs() afero.Fs { return s.fs }

// GenerateFileTree captures the tree rooted at path. Entries matched by
// the ignore rules are left out. Symbolic links are recorded with their
// target and never followed; devices, pipes and sockets are skipped.
func (s *FileService) GenerateFileTree(path string, hasher guardian.Hasher, owner model.UserIdentifier) (*model.FileTreeNode, error) {
	info, err := s.lstat(path)
	if err != nil {
		return nil, mapError("stat", path, err)
	}

	matcher, err := loadMatcher(s.fs, path, s.ignore)
	if err != nil {
		return nil, err
	}

	c := capture{fs: s.fs, root: path, hasher: hasher, owner: owner, matcher: matcher}
	node, err := c.node(path, info)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("capturing %s: special file: %w", path, model.ErrUnsupported)
	}
	return node, nil
}

func (s *FileService) lstat(path string) (os.FileInfo, error) {
	if l, ok := s.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return s.fs.Stat(path)
}

// capture holds the state of one GenerateFileTree call.
type capture struct {
	fs      afero.Fs
	root    string
	hasher  guardian.Hasher
	owner   model.UserIdentifier
	matcher *IgnoreMatcher
}

// node builds the tree node for path. It returns nil for entries that
// are neither files, directories nor symbolic links.
func (c *capture) node(path string, info os.FileInfo) (*model.FileTreeNode, error) {
	name := filepath.Base(path)
	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		target, err := c.readlink(path)
		if err != nil {
			return nil, err
		}
		return model.NewSymlinkNode(name, target), nil
	case mode.IsDir():
		return c.directory(path, name)
	case mode.IsRegular():
		return c.file(path, name, info)
	default:
		return nil, nil
	}
}

func (c *capture) directory(path, name string) (*model.FileTreeNode, error) {
	entries, err := afero.ReadDir(c.fs, path)
	if err != nil {
		return nil, mapError("reading directory", path, err)
	}

	dir := model.NewDirectoryNode(name)
	for _, entry := range entries {
		childPath := filepath.Join(path, entry.Name())
		rel, err := filepath.Rel(c.root, childPath)
		if err != nil {
			return nil, fmt.Errorf("relative path of %s: %w", childPath, err)
		}
		if c.matcher.Match(rel) {
			continue
		}
		child, err := c.node(childPath, entry)
		if err != nil {
			return nil, err
		}
		if child != nil {
			dir.Children = append(dir.Children, child)
		}
	}
	return dir, nil
}

func (c *capture) file(path, name string, info os.FileInfo) (*model.FileTreeNode, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, mapError("opening", path, err)
	}
	src := guardian.NewReaderBlob(f, uint64(info.Size()))
	defer src.Close()

	hash, err := guardian.HashBlob(c.hasher, src)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	return model.NewFileNode(name,
		model.ContentRef{Hash: hash, Owner: c.owner},
		metadataOf(info),
	), nil
}

func (c *capture) readlink(path string) (string, error) {
	lr, ok := c.fs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("reading link %s: %w", path, model.ErrUnsupported)
	}
	target, err := lr.ReadlinkIfPossible(path)
	if err != nil {
		return "", mapError("reading link", path, err)
	}
	return target, nil
}

func metadataOf(info os.FileInfo) model.FileMetadata {
	return model.FileMetadata{
		Size:               uint64(info.Size()),
		LastModifiedMillis: uint64(info.ModTime().UnixMilli()),
	}
}

// GetFile returns a handle on the regular file at path.
func (s *FileService) GetFile(path string) (guardian.File, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, mapError("stat", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path)
	}
	return &file{fs: s.fs, path: path}, nil
}

// WriteFile creates or truncates path, copies content into it, and sets
// the modification time recorded in metadata.
func (s *FileService) WriteFile(path string, metadata model.FileMetadata, content guardian.BlobSource) error {
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return mapError("creating", path, err)
	}
	if _, err := guardian.CheckedCopy(f, content); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	mtime := time.UnixMilli(int64(metadata.LastModifiedMillis))
	if err := s.fs.Chtimes(path, mtime, mtime); err != nil {
		return mapError("setting times on", path, err)
	}
	return nil
}

// CreateDir creates path and any missing parents.
func (s *FileService) CreateDir(path string) error {
	if err := s.fs.MkdirAll(path, 0755); err != nil {
		return mapError("creating directory", path, err)
	}
	return nil
}

// DeleteFile removes a file or an empty directory.
func (s *FileService) DeleteFile(path string) error {
	if err := s.fs.Remove(path); err != nil {
		return mapError("removing", path, err)
	}
	return nil
}

// DeleteDirAll removes path and everything below it. A missing path is
// not an error.
func (s *FileService) DeleteDirAll(path string) error {
	if err := s.fs.RemoveAll(path); err != nil {
		return mapError("removing", path, err)
	}
	return nil
}

type file struct {
	fs   afero.Fs
	path string
}

func (f *file) AsBlob() (guardian.BlobSource, error) {
	h, err := f.fs.Open(f.path)
	if err != nil {
		return nil, mapError("opening", f.path, err)
	}
	info, err := h.Stat()
	if err != nil {
		h.Close()
		return nil, mapError("stat", f.path, err)
	}
	return guardian.NewReaderBlob(h, uint64(info.Size())), nil
}

func (f *file) Size() (uint64, error) {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return 0, mapError("stat", f.path, err)
	}
	return uint64(info.Size()), nil
}

func (f *file) LastModified() (uint64, error) {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return 0, mapError("stat", f.path, err)
	}
	return uint64(info.ModTime().UnixMilli()), nil
}

// mapError translates filesystem errors into the model's error kinds.
func mapError(op, path string, err error) error {
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return fmt.Errorf("%s %s: %v: %w", op, path, err, model.ErrNotFound)
	case errors.Is(err, iofs.ErrPermission):
		return fmt.Errorf("%s %s: %v: %w", op, path, err, model.ErrPermissionDenied)
	default:
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
}

// Compile-time check that FileService implements guardian.FileService
var _ guardian.FileService = (*FileService)(nil)
