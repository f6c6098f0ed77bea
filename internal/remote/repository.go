package remote

import (
	"errors"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// RemoteBackupRepository is a guardian.BackupRepository served by a
// remote Server.
type RemoteBackupRepository struct {
	transport Transport
}

// NewRemoteBackupRepository creates a repository over transport.
func NewRemoteBackupRepository(transport Transport) *RemoteBackupRepository {
	return &RemoteBackupRepository{transport: transport}
}

func (r *RemoteBackupRepository) Create(owner model.UserIdentifier, backup *model.Backup) error {
	_, err := exchange(r.transport, &Call{Kind: CallBackupCreate, User: owner, Backup: backup})
	return err
}

func (r *RemoteBackupRepository) GetByID(owner model.UserIdentifier, id model.BackupID) (*model.Backup, error) {
	resp, err := exchange(r.transport, &Call{Kind: CallBackupGet, User: owner, BackupID: id})
	if errors.Is(err, model.ErrBackupNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.Backup, nil
}

func (r *RemoteBackupRepository) Update(owner model.UserIdentifier, backup *model.Backup) error {
	_, err := exchange(r.transport, &Call{Kind: CallBackupPatch, User: owner, Backup: backup})
	return err
}

func (r *RemoteBackupRepository) GetAll(owner model.UserIdentifier) ([]*model.Backup, error) {
	resp, err := exchange(r.transport, &Call{Kind: CallBackupList, User: owner})
	if err != nil {
		return nil, err
	}
	return resp.Backups, nil
}

var _ guardian.BackupRepository = (*RemoteBackupRepository)(nil)
