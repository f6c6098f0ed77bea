package guardian

import "guardian-go/internal/model"

// BackupRepository persists backup records per owner.
type BackupRepository interface {
	// Create stores a new backup. Returns an error wrapping
	// model.ErrAlreadyExists when the id is taken.
	Create(owner model.UserIdentifier, backup *model.Backup) error

	// GetByID returns the backup or nil if it does not exist.
	GetByID(owner model.UserIdentifier, id model.BackupID) (*model.Backup, error)

	// Update replaces the schedule of an existing backup and merges its
	// snapshots: snapshots not already stored are appended, none are
	// removed. Returns an error wrapping model.ErrBackupNotFound when the
	// backup does not exist.
	Update(owner model.UserIdentifier, backup *model.Backup) error

	// GetAll returns every backup of owner ordered by id.
	GetAll(owner model.UserIdentifier) ([]*model.Backup, error)
}
