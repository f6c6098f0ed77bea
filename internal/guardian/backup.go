package guardian

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/abourget/llerrgroup"

	"guardian-go/internal/model"
)

// BackupStats summarizes one CreateBackup run.
type BackupStats struct {
	Files         int
	BytesUploaded uint64
}

// CreateBackup captures root, stores its content and tree, and records a
// new snapshot in backup id. An empty id is replaced by a generated one.
//
// The snapshot lives for retention. When interval is finite the backup
// gains a schedule rule with that cadence (or refreshes a matching one).
// Returns the stored backup record.
func (s *GuardianService) CreateBackup(root string, id model.BackupID, retention, interval model.Duration) (*model.Backup, error) {
	backup, _, err := s.createBackup(root, id, retention, interval)
	return backup, err
}

// CreateBackupWithStats is CreateBackup that also reports upload counts.
func (s *GuardianService) CreateBackupWithStats(root string, id model.BackupID, retention, interval model.Duration) (*model.Backup, *BackupStats, error) {
	return s.createBackup(root, id, retention, interval)
}

func (s *GuardianService) createBackup(root string, id model.BackupID, retention, interval model.Duration) (*model.Backup, *BackupStats, error) {
	if id == "" {
		id = model.BackupID(s.idgen.New())
	}
	now := s.clock.Now()
	s.logger.Info("backup started", "backup", id, "root", root)

	hasher, err := s.hashes.PreferredHasher()
	if err != nil {
		return nil, nil, stepError(StepCapture, root, err)
	}

	tree, err := s.files.GenerateFileTree(root, hasher, s.user)
	if err != nil {
		return nil, nil, stepError(StepCapture, root, err)
	}

	data, err := s.encoder.Encode(tree)
	if err != nil {
		return nil, nil, stepError(StepEncode, root, err)
	}
	treeRef := model.BlobIdentifier{Hash: HashBytes(hasher, data), Owner: s.user}

	stats, err := s.uploadFiles(tree, root)
	if err != nil {
		return nil, nil, err
	}
	if err := s.blobs.Insert(treeRef, NewBytesBlob(data)); err != nil {
		return nil, nil, stepError(StepUpload, treeRef.String(), err)
	}

	snap := model.NewSnapshot(now, retention, treeRef, tree.ContentRefs())
	backup, err := s.recordSnapshot(id, root, snap, retention, interval, now)
	if err != nil {
		return nil, nil, stepError(StepPersist, string(id), err)
	}

	s.logger.Info("backup finished", "backup", id, "tree", treeRef.Hash.Short(), "files", stats.Files, "uploaded", stats.BytesUploaded)
	return backup, stats, nil
}

// recordSnapshot appends snap to the existing backup or creates a new one.
func (s *GuardianService) recordSnapshot(id model.BackupID, root string, snap model.Snapshot, retention, interval model.Duration, now time.Time) (*model.Backup, error) {
	existing, err := s.backups.GetByID(s.user, id)
	if err != nil {
		return nil, fmt.Errorf("loading backup: %w", err)
	}

	if existing == nil {
		backup := &model.Backup{ID: id, Device: s.device, FileRoot: root}
		backup.Touch(retention, interval, now)
		backup.AddSnapshot(snap)
		if err := s.backups.Create(s.user, backup); err != nil {
			return nil, fmt.Errorf("creating backup: %w", err)
		}
		return backup, nil
	}

	if existing.FileRoot != root {
		s.logger.Warn("backup root differs from recorded root", "backup", id, "recorded", existing.FileRoot, "root", root)
	}
	existing.Touch(retention, interval, now)
	existing.AddSnapshot(snap)
	if err := s.backups.Update(s.user, existing); err != nil {
		return nil, fmt.Errorf("updating backup: %w", err)
	}
	return existing, nil
}

type uploadJob struct {
	path string
	ref  model.ContentRef
	meta model.FileMetadata
}

// uploadFiles inserts the content of every distinct file in tree, using
// up to s.workers concurrent uploads. The first failure stops scheduling.
func (s *GuardianService) uploadFiles(tree *model.FileTreeNode, root string) (*BackupStats, error) {
	var jobs []uploadJob
	seen := make(map[model.ContentRef]bool)
	err := tree.Walk(filepath.Dir(root), func(dir string, node *model.FileTreeNode) error {
		if !node.IsFile() || seen[*node.Content] {
			return nil
		}
		seen[*node.Content] = true
		jobs = append(jobs, uploadJob{path: filepath.Join(dir, node.Name), ref: *node.Content, meta: *node.Metadata})
		return nil
	})
	if err != nil {
		return nil, stepError(StepUpload, root, err)
	}

	var uploaded atomic.Uint64
	eg := llerrgroup.New(s.workers)
	for _, job := range jobs {
		if eg.Stop() {
			break
		}
		eg.Go(func() error {
			n, err := s.uploadFile(job)
			if err != nil {
				return stepError(StepUpload, job.path, err)
			}
			uploaded.Add(n)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		var syncErr *SyncError
		if errors.As(err, &syncErr) {
			return nil, syncErr
		}
		return nil, stepError(StepUpload, root, err)
	}

	return &BackupStats{Files: len(jobs), BytesUploaded: uploaded.Load()}, nil
}

// ErrFileChanged reports a file whose content no longer matches what was
// captured when its tree was built.
var ErrFileChanged = errors.New("file changed during backup")

// uploadFile streams one file into the blob store. The content is hashed
// as it is read and the final read fails unless it matches job.ref, so a
// store never keeps bytes under another content's identifier.
func (s *GuardianService) uploadFile(job uploadJob) (uint64, error) {
	f, err := s.files.GetFile(job.path)
	if err != nil {
		return 0, err
	}
	size, err := f.Size()
	if err != nil {
		return 0, err
	}
	mtime, err := f.LastModified()
	if err != nil {
		return 0, err
	}
	if size != job.meta.Size || mtime != job.meta.LastModifiedMillis {
		return 0, ErrFileChanged
	}
	hasher, err := s.hashes.CompatibleHasher(job.ref.Hash)
	if err != nil {
		return 0, err
	}
	src, err := f.AsBlob()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	verifying := &verifyingBlob{BlobSource: src, hash: hasher.NewPendingHash(), want: job.ref.Hash, mismatch: ErrFileChanged}
	if err := s.blobs.Insert(job.ref, verifying); err != nil {
		return 0, err
	}
	s.logger.Debug("blob stored", "path", job.path, "hash", job.ref.Hash.Short())
	return src.TotalLength() - src.RemainingLength(), nil
}
