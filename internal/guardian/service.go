package guardian

import (
	"fmt"

	"guardian-go/internal/model"
)

// DefaultWorkers bounds parallel blob uploads when none is configured.
const DefaultWorkers = 4

// GuardianService is the orchestration layer that coordinates the file
// service, blob store, and backup repository to take and restore backups.
// It acts on behalf of one user on one device.
type GuardianService struct {
	user    model.UserIdentifier
	device  model.DeviceIdentifier
	backups BackupRepository
	blobs   BlobStore
	hashes  *HashService
	encoder EncodingService
	files   FileService
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	workers int
}

// NewGuardianService creates a new GuardianService with the provided dependencies.
func NewGuardianService(user model.UserIdentifier, device model.DeviceIdentifier, backups BackupRepository, blobs BlobStore, hashes *HashService, encoder EncodingService, files FileService, logger Logger, clock Clock, idgen IDGenerator) *GuardianService {
	if device == "" {
		device = model.DefaultDevice
	}
	return &GuardianService{
		user:    user,
		device:  device,
		backups: backups,
		blobs:   blobs,
		hashes:  hashes,
		encoder: encoder,
		files:   files,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		workers: DefaultWorkers,
	}
}

// SetWorkers sets how many blobs are uploaded concurrently.
func (s *GuardianService) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	s.workers = n
}

// User returns the identity the service acts for.
func (s *GuardianService) User() model.UserIdentifier { return s.user }

// ListBackups returns all backups of the user.
func (s *GuardianService) ListBackups() ([]*model.Backup, error) {
	backups, err := s.backups.GetAll(s.user)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	return backups, nil
}

// GetBackup returns one backup or an error wrapping model.ErrBackupNotFound.
func (s *GuardianService) GetBackup(id model.BackupID) (*model.Backup, error) {
	backup, err := s.backups.GetByID(s.user, id)
	if err != nil {
		return nil, fmt.Errorf("loading backup %s: %w", id, err)
	}
	if backup == nil {
		return nil, fmt.Errorf("%s: %w", id, model.ErrBackupNotFound)
	}
	return backup, nil
}
