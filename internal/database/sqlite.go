package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guardian-go/internal/database/migrations"
	"guardian-go/internal/guardian"
	"guardian-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase stores backup records and the operation journal in SQLite.
// It implements guardian.BackupRepository.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path (or ":memory:") and brings
// its schema up to date.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens a SQLite connection with foreign keys enforced.
// The pool is limited to a single connection: SQLite serializes writers
// anyway, and an in-memory database exists only on its own connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Backup records

func (s *SQLiteDatabase) Create(owner model.UserIdentifier, backup *model.Backup) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := backupExists(ctx, tx, owner, backup.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("backup %s: %w", backup.ID, model.ErrAlreadyExists)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO backups (owner, id, device, file_root, created_at) VALUES (?, ?, ?, ?, ?)`,
		owner, backup.ID, backup.Device, backup.FileRoot, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting backup: %w", err)
	}
	if err := writeSchedule(ctx, tx, owner, backup); err != nil {
		return err
	}
	for i, snap := range backup.Snapshots {
		if err := insertSnapshot(ctx, tx, owner, backup.ID, i, snap); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetByID(owner model.UserIdentifier, id model.BackupID) (*model.Backup, error) {
	ctx := context.Background()
	backup := &model.Backup{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT device, file_root FROM backups WHERE owner = ? AND id = ?`, owner, id,
	).Scan(&backup.Device, &backup.FileRoot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding backup: %w", err)
	}
	if err := loadDetails(ctx, s.db, owner, backup); err != nil {
		return nil, err
	}
	return backup, nil
}

func (s *SQLiteDatabase) Update(owner model.UserIdentifier, backup *model.Backup) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := backupExists(ctx, tx, owner, backup.ID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", backup.ID, model.ErrBackupNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schedule_rules WHERE owner = ? AND backup_id = ?`, owner, backup.ID); err != nil {
		return fmt.Errorf("clearing schedule: %w", err)
	}
	if err := writeSchedule(ctx, tx, owner, backup); err != nil {
		return err
	}

	stored, err := loadSnapshots(ctx, tx, owner, backup.ID)
	if err != nil {
		return err
	}
	next := len(stored)
	for _, snap := range backup.Snapshots {
		known := false
		for _, existing := range stored {
			if existing.Equal(snap) {
				known = true
				break
			}
		}
		if known {
			continue
		}
		if err := insertSnapshot(ctx, tx, owner, backup.ID, next, snap); err != nil {
			return err
		}
		stored = append(stored, snap)
		next++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetAll(owner model.UserIdentifier) ([]*model.Backup, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device, file_root FROM backups WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	var backups []*model.Backup
	for rows.Next() {
		b := &model.Backup{}
		if err := rows.Scan(&b.ID, &b.Device, &b.FileRoot); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning backup: %w", err)
		}
		backups = append(backups, b)
	}
	// Release the single connection before loading details.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	for _, b := range backups {
		if err := loadDetails(ctx, s.db, owner, b); err != nil {
			return nil, err
		}
	}
	return backups, nil
}

func backupExists(ctx context.Context, q querier, owner model.UserIdentifier, id model.BackupID) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM backups WHERE owner = ? AND id = ?`, owner, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("checking backup: %w", err)
	}
	return true, nil
}

func loadDetails(ctx context.Context, q querier, owner model.UserIdentifier, b *model.Backup) error {
	schedule, err := loadSchedule(ctx, q, owner, b.ID)
	if err != nil {
		return err
	}
	snapshots, err := loadSnapshots(ctx, q, owner, b.ID)
	if err != nil {
		return err
	}
	b.Schedule = schedule
	b.Snapshots = snapshots
	return nil
}

func writeSchedule(ctx context.Context, q querier, owner model.UserIdentifier, b *model.Backup) error {
	for i, rule := range b.Schedule {
		_, err := q.ExecContext(ctx, `
			INSERT INTO schedule_rules (owner, backup_id, position, snapshot_lifetime_ms, interval_ms, last_execution_ms)
			VALUES (?, ?, ?, ?, ?, ?)`,
			owner, b.ID, i,
			durationToNull(rule.SnapshotLifetime), durationToNull(rule.Interval),
			rule.LastExecution.UnixMilli())
		if err != nil {
			return fmt.Errorf("inserting schedule rule: %w", err)
		}
	}
	return nil
}

func loadSchedule(ctx context.Context, q querier, owner model.UserIdentifier, id model.BackupID) (model.Schedule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT snapshot_lifetime_ms, interval_ms, last_execution_ms
		FROM schedule_rules WHERE owner = ? AND backup_id = ? ORDER BY position`, owner, id)
	if err != nil {
		return nil, fmt.Errorf("loading schedule: %w", err)
	}
	defer rows.Close()

	var schedule model.Schedule
	for rows.Next() {
		var lifetime, interval sql.NullInt64
		var last int64
		if err := rows.Scan(&lifetime, &interval, &last); err != nil {
			return nil, fmt.Errorf("scanning schedule rule: %w", err)
		}
		schedule = append(schedule, model.ScheduleRule{
			SnapshotLifetime: nullToDuration(lifetime),
			Interval:         nullToDuration(interval),
			LastExecution:    fromMillis(last),
		})
	}
	return schedule, rows.Err()
}

func insertSnapshot(ctx context.Context, q querier, owner model.UserIdentifier, id model.BackupID, seq int, snap model.Snapshot) error {
	var expiration sql.NullInt64
	if snap.ExpirationTime != nil {
		expiration = sql.NullInt64{Int64: snap.ExpirationTime.UnixMilli(), Valid: true}
	}
	root := snap.RootTreeRef
	_, err := q.ExecContext(ctx, `
		INSERT INTO snapshots (owner, backup_id, seq, timestamp_ms, expiration_ms, root_algorithm, root_digest, root_owner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		owner, id, seq, snap.Timestamp.UnixMilli(), expiration,
		root.Hash.Algorithm, root.Hash.Digest, root.Owner)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	for pos, ref := range snap.BlobRefs {
		_, err := q.ExecContext(ctx, `
			INSERT INTO snapshot_blobs (owner, backup_id, seq, position, algorithm, digest, blob_owner)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			owner, id, seq, pos, ref.Hash.Algorithm, ref.Hash.Digest, ref.Owner)
		if err != nil {
			return fmt.Errorf("inserting snapshot blob: %w", err)
		}
	}
	return nil
}

func loadSnapshots(ctx context.Context, q querier, owner model.UserIdentifier, id model.BackupID) ([]model.Snapshot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT seq, timestamp_ms, expiration_ms, root_algorithm, root_digest, root_owner
		FROM snapshots WHERE owner = ? AND backup_id = ? ORDER BY seq`, owner, id)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	var snapshots []model.Snapshot
	bySeq := make(map[int]int)
	for rows.Next() {
		var seq int
		var ts int64
		var expiration sql.NullInt64
		var snap model.Snapshot
		if err := rows.Scan(&seq, &ts, &expiration,
			&snap.RootTreeRef.Hash.Algorithm, &snap.RootTreeRef.Hash.Digest, &snap.RootTreeRef.Owner); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.Timestamp = fromMillis(ts)
		if expiration.Valid {
			exp := fromMillis(expiration.Int64)
			snap.ExpirationTime = &exp
		}
		bySeq[seq] = len(snapshots)
		snapshots = append(snapshots, snap)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, nil
	}

	blobRows, err := q.QueryContext(ctx, `
		SELECT seq, algorithm, digest, blob_owner
		FROM snapshot_blobs WHERE owner = ? AND backup_id = ? ORDER BY seq, position`, owner, id)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot blobs: %w", err)
	}
	defer blobRows.Close()
	for blobRows.Next() {
		var seq int
		var ref model.BlobIdentifier
		if err := blobRows.Scan(&seq, &ref.Hash.Algorithm, &ref.Hash.Digest, &ref.Owner); err != nil {
			return nil, fmt.Errorf("scanning snapshot blob: %w", err)
		}
		i, ok := bySeq[seq]
		if !ok {
			return nil, fmt.Errorf("snapshot blob for unknown snapshot %d", seq)
		}
		snapshots[i].BlobRefs = append(snapshots[i].BlobRefs, ref)
	}
	return snapshots, blobRows.Err()
}

func durationToNull(d model.Duration) sql.NullInt64 {
	if d.IsInfinite() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(d.Millis), Valid: true}
}

func nullToDuration(n sql.NullInt64) model.Duration {
	if !n.Valid {
		return model.InfiniteDuration
	}
	return model.LimitedMillis(uint64(n.Int64))
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Operation journal

// Operation is one journaled CLI run.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Operation  string
	Parameters string
	Status     string
}

// CreateOperation records the start of an operation and returns it with
// its assigned id.
func (s *SQLiteDatabase) CreateOperation(operation, parameters string) (*Operation, error) {
	op := &Operation{
		StartedAt:  time.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.Exec(
		`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

// FinishOperation stamps the operation with its final status.
func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	_, err := s.db.Exec(`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

// ListOperations returns up to limit operations, newest first.
func (s *SQLiteDatabase) ListOperations(limit int) ([]*Operation, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, operation, parameters, status
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op := &Operation{}
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.StartedAt, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements guardian.BackupRepository
var _ guardian.BackupRepository = (*SQLiteDatabase)(nil)
