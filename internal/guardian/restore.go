package guardian

import (
	"fmt"
	"path/filepath"

	"guardian-go/internal/model"
)

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Snapshot     model.Snapshot
	Applied      []model.FileTreeDiff
	BytesWritten uint64
}

// Restore reconciles the directory at root with the latest snapshot of
// backup id: files and directories that differ are rewritten, missing
// ones created, and extra ones deleted. root is created if absent.
//
// Changes are applied one at a time in diff order. A failure stops the
// restore and leaves the changes already applied in place.
func (s *GuardianService) Restore(root string, id model.BackupID) (*RestoreResult, error) {
	s.logger.Info("restore started", "backup", id, "root", root)

	snap, desired, err := s.loadLatest(id)
	if err != nil {
		return nil, err
	}

	if err := s.files.CreateDir(root); err != nil {
		return nil, stepError(StepApply, root, err)
	}
	actual, err := s.captureActual(root)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{Snapshot: snap}
	for diff, err := range model.Diff(desired, actual, root) {
		if err != nil {
			return result, stepError(StepDiff, root, err)
		}
		n, err := s.apply(diff)
		if err != nil {
			return result, stepError(StepApply, diff.Path(), err)
		}
		s.logger.Debug("change applied", "kind", diff.Kind.String(), "path", diff.Path())
		result.Applied = append(result.Applied, diff)
		result.BytesWritten += n
	}

	s.logger.Info("restore finished", "backup", id, "changes", len(result.Applied), "written", result.BytesWritten)
	return result, nil
}

// loadLatest fetches and decodes the tree of the latest snapshot of id.
func (s *GuardianService) loadLatest(id model.BackupID) (model.Snapshot, *model.FileTreeNode, error) {
	backup, err := s.GetBackup(id)
	if err != nil {
		return model.Snapshot{}, nil, stepError(StepLoad, string(id), err)
	}
	snap, err := backup.LatestSnapshot()
	if err != nil {
		return model.Snapshot{}, nil, stepError(StepLoad, string(id), err)
	}
	tree, err := s.loadTree(snap.RootTreeRef)
	if err != nil {
		return model.Snapshot{}, nil, err
	}
	return snap, tree, nil
}

func (s *GuardianService) loadTree(ref model.BlobIdentifier) (*model.FileTreeNode, error) {
	src, err := s.blobs.Fetch(ref)
	if err != nil {
		return nil, stepError(StepFetchTree, ref.String(), err)
	}
	defer src.Close()

	data, err := ReadToEnd(src)
	if err != nil {
		return nil, stepError(StepFetchTree, ref.String(), err)
	}

	var tree model.FileTreeNode
	if err := s.encoder.Decode(data, &tree); err != nil {
		return nil, stepError(StepDecode, ref.String(), err)
	}
	if err := tree.Validate(); err != nil {
		return nil, stepError(StepDecode, ref.String(), err)
	}
	return &tree, nil
}

func (s *GuardianService) captureActual(root string) (*model.FileTreeNode, error) {
	hasher, err := s.hashes.PreferredHasher()
	if err != nil {
		return nil, stepError(StepCapture, root, err)
	}
	tree, err := s.files.GenerateFileTree(root, hasher, s.user)
	if err != nil {
		return nil, stepError(StepCapture, root, err)
	}
	return tree, nil
}

// apply performs one diff and returns the number of content bytes written.
func (s *GuardianService) apply(diff model.FileTreeDiff) (uint64, error) {
	path := diff.Path()
	switch diff.Kind {
	case model.DiffCreated:
		return s.materialize(diff.Node, diff.Location)
	case model.DiffUpdated:
		return s.writeFile(path, diff.Node)
	case model.DiffDeleted:
		switch diff.Node.Kind {
		case model.KindDirectory:
			return 0, s.files.DeleteDirAll(path)
		case model.KindFile:
			return 0, s.files.DeleteFile(path)
		default:
			return 0, fmt.Errorf("deleting %s node: %w", diff.Node.Kind, model.ErrUnsupported)
		}
	case model.DiffChangedType:
		if err := s.files.DeleteDirAll(path); err != nil {
			return 0, err
		}
		return s.materialize(diff.Node, diff.Location)
	default:
		return 0, fmt.Errorf("unknown diff kind %v", diff.Kind)
	}
}

// materialize creates node (recursively for directories) inside dir.
func (s *GuardianService) materialize(node *model.FileTreeNode, dir string) (uint64, error) {
	path := filepath.Join(dir, node.Name)
	switch node.Kind {
	case model.KindFile:
		return s.writeFile(path, node)
	case model.KindDirectory:
		if err := s.files.CreateDir(path); err != nil {
			return 0, err
		}
		var total uint64
		for _, child := range node.Children {
			n, err := s.materialize(child, path)
			total += n
			if err != nil {
				return total, err
			}
		}
		return total, nil
	default:
		return 0, fmt.Errorf("creating %s node: %w", node.Kind, model.ErrUnsupported)
	}
}

// writeFile fetches the content of a file node and writes it to path,
// verifying it against the recorded hash while streaming. A mismatch
// fails the write before the modification time is applied.
func (s *GuardianService) writeFile(path string, node *model.FileTreeNode) (uint64, error) {
	if node.Content == nil || node.Metadata == nil {
		return 0, fmt.Errorf("file node without content: %w", model.ErrDecode)
	}
	hasher, err := s.hashes.CompatibleHasher(node.Content.Hash)
	if err != nil {
		return 0, err
	}

	src, err := s.blobs.Fetch(*node.Content)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	verifying := &verifyingBlob{BlobSource: src, hash: hasher.NewPendingHash(), want: node.Content.Hash}
	if err := s.files.WriteFile(path, *node.Metadata, verifying); err != nil {
		return 0, err
	}
	return src.TotalLength(), nil
}

// verifyingBlob feeds everything read through it into a pending hash and
// fails the final read when the content does not match want. A failed
// final read returns no bytes, so a sink never receives the full declared
// length. The failure wraps mismatch, or model.ErrDecode when mismatch
// is nil.
type verifyingBlob struct {
	BlobSource
	hash     PendingHash
	want     model.FileHash
	mismatch error
}

func (v *verifyingBlob) Read(p []byte) (int, error) {
	n, err := v.BlobSource.Read(p)
	if n > 0 {
		v.hash.Write(p[:n])
	}
	if v.BlobSource.RemainingLength() == 0 && v.hash != nil {
		got := v.hash.Finalize()
		v.hash = nil
		if got != v.want {
			cause := v.mismatch
			if cause == nil {
				cause = model.ErrDecode
			}
			return 0, fmt.Errorf("content hash %s does not match %s: %w", got.Short(), v.want.Short(), cause)
		}
	}
	return n, err
}
