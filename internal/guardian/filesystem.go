package guardian

import "guardian-go/internal/model"

// FileService captures directory trees and applies changes to them.
// It abstracts file access to enable testing without touching the real filesystem.
type FileService interface {
	// GenerateFileTree captures the tree rooted at path. Every file is
	// hashed with hasher and its content ref is owned by owner. The root
	// node is named after the last element of path.
	GenerateFileTree(path string, hasher Hasher, owner model.UserIdentifier) (*model.FileTreeNode, error)

	// GetFile opens a handle to the file at path.
	GetFile(path string) (File, error)

	// WriteFile creates or truncates path, writes content, and applies
	// the modification time from metadata.
	WriteFile(path string, metadata model.FileMetadata, content BlobSource) error

	// CreateDir creates a directory (and missing parents).
	CreateDir(path string) error

	// DeleteFile removes a single file or empty directory.
	DeleteFile(path string) error

	// DeleteDirAll removes path and everything below it.
	DeleteDirAll(path string) error
}

// File is a handle on one regular file.
type File interface {
	// AsBlob opens the file content as a BlobSource.
	AsBlob() (BlobSource, error)
	Size() (uint64, error)
	LastModified() (uint64, error)
}
