package guardian

import (
	"errors"
	"fmt"

	"guardian-go/internal/model"
)

// RunDue takes a snapshot for every schedule rule that is due on this
// device, using the rule's lifetime, and refreshes the rule. Failures on
// one backup do not stop the others; they are joined into the returned
// error. Returns the ids of backups that got a new snapshot.
func (s *GuardianService) RunDue() ([]model.BackupID, error) {
	backups, err := s.ListBackups()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var ran []model.BackupID
	var errs []error
	for _, b := range backups {
		if b.Device != s.device {
			continue
		}
		for _, rule := range b.Schedule {
			if !rule.Due(now) {
				continue
			}
			s.logger.Info("scheduled backup due", "backup", b.ID, "interval", rule.Interval.String())
			if _, err := s.CreateBackup(b.FileRoot, b.ID, rule.SnapshotLifetime, rule.Interval); err != nil {
				errs = append(errs, fmt.Errorf("backup %s: %w", b.ID, err))
				continue
			}
			ran = append(ran, b.ID)
		}
	}
	return ran, errors.Join(errs...)
}
