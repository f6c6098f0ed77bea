package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"guardian-go/internal/config"
	"guardian-go/internal/database"
	"guardian-go/internal/encoding"
	"guardian-go/internal/encryption"
	"guardian-go/internal/fs"
	"guardian-go/internal/guardian"
	"guardian-go/internal/hashing"
	"guardian-go/internal/model"
	"guardian-go/internal/remote"
	"guardian-go/internal/vault"
)

// journalName is the local database holding the operation journal and,
// for local repositories, the backup records.
const journalName = "guardian"

// GuardianApp is the application layer between the CLI and GuardianService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the journal on Close.
type GuardianApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	blobs     guardian.BlobStore
	encrypted *vault.EncryptedVault
	encryptor guardian.Encryptor
	service   *guardian.GuardianService
	op        *Operation
	logger    *slog.Logger
	logCloser io.Closer
	retry     retryPolicy
}

// Options tune a GuardianApp beyond what the config file holds.
type Options struct {
	// Operation identifies the CLI command being run (e.g. "CreateBackup").
	Operation string
	// Verbose enables debug records in the log.
	Verbose bool
}

// NewGuardianApp creates a fully wired GuardianApp from the given config.
// The caller must call Close when done.
func NewGuardianApp(cfg *config.Config, opts Options) (*GuardianApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logCloser, err := newLogger(cfg.LogDir, opID, level, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	db, err := database.NewDatabaseFromConfig(cfg.Database, journalName)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logCloser.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	a := &GuardianApp{
		cfg:       cfg,
		db:        db,
		op:        NewOperation(opts.Operation, ""),
		logger:    logger,
		logCloser: logCloser,
	}
	if err := a.wire(adapter); err != nil {
		db.Close()
		logCloser.Close()
		return nil, err
	}
	return a, nil
}

// wire builds the repository, blob store, and service.
func (a *GuardianApp) wire(logger guardian.Logger) error {
	cfg := a.cfg
	encoder := encoding.NewYAMLEncoder()

	var backups guardian.BackupRepository
	switch cfg.Repository.Type {
	case "", "local":
		blobs, err := vault.NewVaultFromConfig(cfg.Vault)
		if err != nil {
			return fmt.Errorf("creating vault: %w", err)
		}
		backups, a.blobs = a.db, blobs
	case "remote":
		timeout, err := cfg.Repository.TimeoutDuration()
		if err != nil {
			return err
		}
		url := strings.TrimRight(cfg.Repository.URL, "/") + remote.ExchangePath
		transport := remote.NewWebSocketTransport(url, cfg.Repository.Token, timeout, encoder)
		backups, a.blobs = remote.NewRemoteBackupRepository(transport), remote.NewRemoteVault(transport)
	default:
		return fmt.Errorf("unknown repository type: %s", cfg.Repository.Type)
	}

	if cfg.Encryption.Enabled {
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		if !enc.IsConfigured() {
			return fmt.Errorf("encryption enabled but no keys at %s: run 'guardian keys init'", cfg.Encryption.PublicKeyPath)
		}
		a.encryptor = enc
		a.encrypted = vault.NewEncryptedVault(a.blobs, enc, "")
		a.blobs = a.encrypted
	}

	hashes, err := hashing.NewHashServiceFromConfig(cfg.Hashing)
	if err != nil {
		return fmt.Errorf("creating hash service: %w", err)
	}

	delay, err := cfg.Sync.RetryDelayDuration()
	if err != nil {
		return err
	}
	a.retry = retryPolicy{attempts: cfg.Sync.RetryAttempts, delay: delay, logger: logger}

	files := fs.NewOSFileService(cfg.Filesystem.Ignore)
	a.service = guardian.NewGuardianService(
		model.UserIdentifier(cfg.UserID), model.DeviceIdentifier(cfg.DeviceID),
		backups, a.blobs, hashes, encoder, files, logger,
		guardian.RealClock{}, guardian.UUIDGenerator{})
	if cfg.Sync.Workers > 0 {
		a.service.SetWorkers(cfg.Sync.Workers)
	}
	return nil
}

// NeedsPassphrase reports whether reading blobs requires Unlock first.
func (a *GuardianApp) NeedsPassphrase() bool {
	return a.encrypted != nil
}

// Unlock decrypts the private key for this session so blobs can be read.
func (a *GuardianApp) Unlock(passphrase string) error {
	if a.encrypted == nil {
		return nil
	}
	dec, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return err
	}
	a.encrypted.Unlock(dec)
	return nil
}

// begin persists the current operation to the journal, giving it an ID.
// This should only be called for mutating commands.
func (a *GuardianApp) begin(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	rec, err := a.db.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = rec.ID
	a.op.Status = StatusSuccess
	return nil
}

// CreateBackup resolves rawPath and takes a snapshot of it into backup id.
// retention and interval are duration strings; empty values default to
// 30 days and infinite.
func (a *GuardianApp) CreateBackup(rawPath, id, retention, interval string) (*model.Backup, *guardian.BackupStats, error) {
	root, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving path: %w", err)
	}
	lifetime, err := parseDurationOr(retention, model.Month)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid retention: %w", err)
	}
	every, err := parseDurationOr(interval, model.InfiniteDuration)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid interval: %w", err)
	}

	if err := a.begin(fmt.Sprintf("root=%s id=%s retention=%s interval=%s", root, id, lifetime, every)); err != nil {
		return nil, nil, err
	}

	var backup *model.Backup
	var stats *guardian.BackupStats
	err = a.retry.withRetry("CreateBackup", func() error {
		var err error
		backup, stats, err = a.service.CreateBackupWithStats(root, model.BackupID(id), lifetime, every)
		return err
	})
	if err != nil {
		return nil, nil, a.op.Fail(err)
	}
	a.logger.Info("backup stored", "backup", backup.ID, "files", stats.Files, "uploaded", humanize.Bytes(stats.BytesUploaded))
	return backup, stats, nil
}

// Restore resolves rawPath and reconciles it with the latest snapshot of
// backup id. The path may not exist yet.
func (a *GuardianApp) Restore(rawPath, id string) (*guardian.RestoreResult, error) {
	root, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if err := a.begin(fmt.Sprintf("root=%s id=%s", root, id)); err != nil {
		return nil, err
	}

	var result *guardian.RestoreResult
	err = a.retry.withRetry("Restore", func() error {
		var err error
		result, err = a.service.Restore(root, model.BackupID(id))
		return err
	})
	if err != nil {
		return result, a.op.Fail(err)
	}
	a.logger.Info("restore complete", "backup", id, "changes", len(result.Applied), "written", humanize.Bytes(result.BytesWritten))
	return result, nil
}

// Status returns the changes a restore of backup id into rawPath would make.
func (a *GuardianApp) Status(rawPath, id string) ([]model.FileTreeDiff, error) {
	root, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.service.Status(root, model.BackupID(id))
}

// RunDue takes every scheduled snapshot that is due on this device.
func (a *GuardianApp) RunDue() ([]model.BackupID, error) {
	if err := a.begin(""); err != nil {
		return nil, err
	}
	ran, err := a.service.RunDue()
	if err != nil {
		return ran, a.op.Fail(err)
	}
	return ran, nil
}

// BackupSummary is one row of `backup list`.
type BackupSummary struct {
	ID         model.BackupID
	Device     model.DeviceIdentifier
	FileRoot   string
	Snapshots  int
	Latest     *time.Time
	Expires    *time.Time
	Schedule   model.Schedule
	TotalBytes uint64
	// SizeKnown is false when the latest tree could not be read, for
	// instance on a locked encrypted store.
	SizeKnown bool
}

// ListBackups summarizes every backup of the configured user.
func (a *GuardianApp) ListBackups() ([]BackupSummary, error) {
	backups, err := a.service.ListBackups()
	if err != nil {
		return nil, err
	}

	out := make([]BackupSummary, 0, len(backups))
	for _, b := range backups {
		sum := BackupSummary{
			ID:        b.ID,
			Device:    b.Device,
			FileRoot:  b.FileRoot,
			Snapshots: len(b.Snapshots),
			Schedule:  b.Schedule,
		}
		if snap, err := b.LatestSnapshot(); err == nil {
			ts := snap.Timestamp
			sum.Latest = &ts
			sum.Expires = snap.ExpirationTime
			tree, err := a.service.LatestTree(b.ID)
			switch {
			case err == nil:
				sum.TotalBytes, sum.SizeKnown = tree.TotalSize(), true
			case errors.Is(err, model.ErrPermissionDenied):
			default:
				a.logger.Warn("reading latest tree", "backup", b.ID, "error", err)
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// GetHistory returns the most recent journaled operations.
func (a *GuardianApp) GetHistory(limit int) ([]*database.Operation, error) {
	return a.db.ListOperations(limit)
}

// Close finishes the journaled operation, if any, and releases resources.
func (a *GuardianApp) Close() error {
	var errs []error
	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return errors.Join(errs...)
}

// InitKeys generates the encryption key pair named in cfg, protecting the
// private key with passphrase.
func InitKeys(cfg config.EncryptionConfig, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	return enc.Setup(passphrase)
}

func parseDurationOr(s string, def model.Duration) (model.Duration, error) {
	if s == "" {
		return def, nil
	}
	return model.ParseDuration(s)
}
