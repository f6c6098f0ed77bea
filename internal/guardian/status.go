package guardian

import (
	"errors"
	"path/filepath"

	"guardian-go/internal/model"
)

// Status returns the changes a restore of backup id into root would
// apply, without touching the filesystem. A missing root is treated as
// an empty directory.
func (s *GuardianService) Status(root string, id model.BackupID) ([]model.FileTreeDiff, error) {
	s.logger.Debug("computing status", "backup", id, "root", root)

	_, desired, err := s.loadLatest(id)
	if err != nil {
		return nil, err
	}

	actual, err := s.captureActual(root)
	if errors.Is(err, model.ErrNotFound) {
		actual = model.NewDirectoryNode(filepath.Base(root))
	} else if err != nil {
		return nil, err
	}

	diffs, err := model.DiffAll(desired, actual, root)
	if err != nil {
		return nil, stepError(StepDiff, root, err)
	}
	return diffs, nil
}

// LatestTree returns the decoded tree of the latest snapshot of id.
func (s *GuardianService) LatestTree(id model.BackupID) (*model.FileTreeNode, error) {
	_, tree, err := s.loadLatest(id)
	return tree, err
}
