package model

import (
	"fmt"
	"iter"
	"path/filepath"
)

// DiffKind classifies one difference between two trees.
type DiffKind int

const (
	// DiffCreated: the node exists only in the desired tree.
	DiffCreated DiffKind = iota
	// DiffUpdated: a file exists in both trees with different metadata.
	DiffUpdated
	// DiffDeleted: the node exists only in the actual tree.
	DiffDeleted
	// DiffChangedType: the same name is a file in one tree and a
	// directory in the other.
	DiffChangedType
)

func (k DiffKind) String() string {
	switch k {
	case DiffCreated:
		return "created"
	case DiffUpdated:
		return "updated"
	case DiffDeleted:
		return "deleted"
	case DiffChangedType:
		return "changed-type"
	default:
		return fmt.Sprintf("DiffKind(%d)", int(k))
	}
}

// FileTreeDiff is one step needed to turn the actual tree into the
// desired one. Location is the directory containing Node, so the
// affected path is filepath.Join(Location, Node.Name).
//
// Node is the desired node for Created, Updated and ChangedType, and the
// node being removed for Deleted.
type FileTreeDiff struct {
	Kind     DiffKind
	Node     *FileTreeNode
	Location string
}

// Path returns the filesystem path the diff applies to.
func (d FileTreeDiff) Path() string {
	return filepath.Join(d.Location, d.Node.Name)
}

func (d FileTreeDiff) String() string {
	return fmt.Sprintf("%s %s", d.Kind, d.Path())
}

// Diff yields the differences that turn actual into desired. basePath is
// the filesystem path of the root pair itself; the root names are not
// compared.
//
// Inside each directory, removals are yielded first, then the recursion
// into children present on both sides (in desired order), then
// additions. Files compare by metadata only: equal size and mtime means
// unchanged even if content differs. A symbolic link on both sides of a
// pair yields an ErrUnsupported error and ends the sequence.
func Diff(desired, actual *FileTreeNode, basePath string) iter.Seq2[FileTreeDiff, error] {
	return func(yield func(FileTreeDiff, error) bool) {
		parent := filepath.Dir(basePath)
		name := filepath.Base(basePath)
		d := differ{yield: yield}
		d.pair(desired.Renamed(name), actual.Renamed(name), parent)
	}
}

// DiffAll collects Diff into a slice, stopping at the first error.
func DiffAll(desired, actual *FileTreeNode, basePath string) ([]FileTreeDiff, error) {
	var diffs []FileTreeDiff
	for d, err := range Diff(desired, actual, basePath) {
		if err != nil {
			return diffs, err
		}
		diffs = append(diffs, d)
	}
	return diffs, nil
}

type differ struct {
	yield   func(FileTreeDiff, error) bool
	stopped bool
}

func (d *differ) emit(kind DiffKind, node *FileTreeNode, location string) {
	if d.stopped {
		return
	}
	if !d.yield(FileTreeDiff{Kind: kind, Node: node, Location: location}, nil) {
		d.stopped = true
	}
}

func (d *differ) fail(err error) {
	if d.stopped {
		return
	}
	d.yield(FileTreeDiff{}, err)
	d.stopped = true
}

// pair compares two nodes sharing a name inside directory dir.
func (d *differ) pair(desired, actual *FileTreeNode, dir string) {
	if d.stopped {
		return
	}
	switch {
	case desired.IsSymlink() || actual.IsSymlink():
		d.fail(fmt.Errorf("comparing %s: symbolic links: %w", filepath.Join(dir, desired.Name), ErrUnsupported))
	case desired.IsFile() && actual.IsFile():
		if !sameModTime(desired.Metadata, actual.Metadata) {
			d.emit(DiffUpdated, desired, dir)
		}
	case desired.IsDirectory() && actual.IsDirectory():
		d.children(desired, actual, filepath.Join(dir, desired.Name))
	default:
		d.emit(DiffChangedType, desired, dir)
	}
}

// children compares the children of two directories located at path.
func (d *differ) children(desired, actual *FileTreeNode, path string) {
	wanted := make(map[string]bool, len(desired.Children))
	for _, c := range desired.Children {
		wanted[c.Name] = true
	}
	present := make(map[string]*FileTreeNode, len(actual.Children))
	for _, c := range actual.Children {
		present[c.Name] = c
	}

	for _, c := range actual.Children {
		if !wanted[c.Name] {
			d.emit(DiffDeleted, c, path)
		}
	}
	for _, c := range desired.Children {
		if a, ok := present[c.Name]; ok {
			d.pair(c, a, path)
		}
	}
	for _, c := range desired.Children {
		if _, ok := present[c.Name]; !ok {
			d.emit(DiffCreated, c, path)
		}
	}
}

// sameModTime compares only the modification times; a size change with
// an unchanged mtime is not an update.
func sameModTime(a, b *FileMetadata) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.LastModifiedMillis == b.LastModifiedMillis
}
