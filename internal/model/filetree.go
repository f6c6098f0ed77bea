package model

import (
	"fmt"
	"path/filepath"
)

// NodeKind distinguishes the variants of a FileTreeNode.
type NodeKind string

const (
	KindFile      NodeKind = "file"
	KindDirectory NodeKind = "directory"
	KindSymlink   NodeKind = "symlink"
)

// FileMetadata is the per-file attribute set used for change detection.
type FileMetadata struct {
	Size               uint64 `yaml:"size" json:"size"`
	LastModifiedMillis uint64 `yaml:"last_modified" json:"last_modified"`
}

// FileTreeNode is one node of a captured directory tree.
//
// Files carry Content and Metadata, directories carry Children, and
// symbolic links carry Target (the link text, never followed).
type FileTreeNode struct {
	Kind     NodeKind        `yaml:"kind" json:"kind"`
	Name     string          `yaml:"name" json:"name"`
	Content  *ContentRef     `yaml:"content,omitempty" json:"content,omitempty"`
	Metadata *FileMetadata   `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Children []*FileTreeNode `yaml:"children,omitempty" json:"children,omitempty"`
	Target   string          `yaml:"target,omitempty" json:"target,omitempty"`
}

// NewFileNode creates a file node.
func NewFileNode(name string, content ContentRef, metadata FileMetadata) *FileTreeNode {
	return &FileTreeNode{Kind: KindFile, Name: name, Content: &content, Metadata: &metadata}
}

// NewDirectoryNode creates a directory node with the given children.
func NewDirectoryNode(name string, children ...*FileTreeNode) *FileTreeNode {
	return &FileTreeNode{Kind: KindDirectory, Name: name, Children: children}
}

// NewSymlinkNode creates a symbolic link node.
func NewSymlinkNode(name, target string) *FileTreeNode {
	return &FileTreeNode{Kind: KindSymlink, Name: name, Target: target}
}

func (n *FileTreeNode) IsFile() bool      { return n.Kind == KindFile }
func (n *FileTreeNode) IsDirectory() bool { return n.Kind == KindDirectory }
func (n *FileTreeNode) IsSymlink() bool   { return n.Kind == KindSymlink }

// Child returns the direct child with the given name, or nil.
func (n *FileTreeNode) Child(name string) *FileTreeNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Renamed returns a shallow copy of the node carrying a different name.
func (n *FileTreeNode) Renamed(name string) *FileTreeNode {
	cp := *n
	cp.Name = name
	return &cp
}

// Validate checks the structural rules of the tree: known kinds, file
// nodes with content and metadata, and unique child names per directory.
func (n *FileTreeNode) Validate() error {
	switch n.Kind {
	case KindFile:
		if n.Content == nil || n.Metadata == nil {
			return fmt.Errorf("file %q: missing content or metadata: %w", n.Name, ErrDecode)
		}
		if err := n.Content.Validate(); err != nil {
			return fmt.Errorf("file %q: %v: %w", n.Name, err, ErrDecode)
		}
	case KindSymlink:
	case KindDirectory:
		seen := make(map[string]bool, len(n.Children))
		for _, c := range n.Children {
			if c == nil {
				return fmt.Errorf("directory %q: nil child: %w", n.Name, ErrDecode)
			}
			if seen[c.Name] {
				return fmt.Errorf("directory %q: duplicate child %q: %w", n.Name, c.Name, ErrDecode)
			}
			seen[c.Name] = true
			if err := c.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("node %q: unknown kind %q: %w", n.Name, n.Kind, ErrDecode)
	}
	return nil
}

// Walk visits the node and its descendants depth-first. dir is the
// directory containing n; fn receives each node together with the
// directory that contains it.
func (n *FileTreeNode) Walk(dir string, fn func(dir string, node *FileTreeNode) error) error {
	if err := fn(dir, n); err != nil {
		return err
	}
	if !n.IsDirectory() {
		return nil
	}
	self := filepath.Join(dir, n.Name)
	for _, c := range n.Children {
		if err := c.Walk(self, fn); err != nil {
			return err
		}
	}
	return nil
}

// ContentRefs returns the content refs of all file nodes in walk order.
func (n *FileTreeNode) ContentRefs() []ContentRef {
	var refs []ContentRef
	_ = n.Walk("", func(_ string, node *FileTreeNode) error {
		if node.IsFile() && node.Content != nil {
			refs = append(refs, *node.Content)
		}
		return nil
	})
	return refs
}

// TotalSize sums the sizes of all file nodes.
func (n *FileTreeNode) TotalSize() uint64 {
	var total uint64
	_ = n.Walk("", func(_ string, node *FileTreeNode) error {
		if node.IsFile() && node.Metadata != nil {
			total += node.Metadata.Size
		}
		return nil
	})
	return total
}
