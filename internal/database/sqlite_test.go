package database

import (
	"errors"
	"testing"
	"time"

	"guardian-go/internal/model"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func ref(owner, digest string) model.BlobIdentifier {
	return model.BlobIdentifier{
		Hash:  model.FileHash{Algorithm: model.AlgorithmSHA256, Digest: digest},
		Owner: model.UserIdentifier(owner),
	}
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleBackup() *model.Backup {
	b := &model.Backup{ID: "docs", Device: "laptop", FileRoot: "/home/alice/docs"}
	b.Touch(model.Month, model.Limited(24*time.Hour), t0)
	b.AddSnapshot(model.NewSnapshot(t0, model.Month, ref("alice", "aaaa"), []model.BlobIdentifier{ref("alice", "bbbb"), ref("alice", "cccc")}))
	return b
}

func TestSQLiteDatabase_CreateAndGet(t *testing.T) {
	t.Run("returns nil when backup not found", func(t *testing.T) {
		db := newTestDB(t)

		got, err := db.GetByID("alice", "missing")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got != nil {
			t.Errorf("GetByID() = %v, want nil", got)
		}
	})

	t.Run("round-trips a backup", func(t *testing.T) {
		db := newTestDB(t)
		want := sampleBackup()

		if err := db.Create("alice", want); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		got, err := db.GetByID("alice", "docs")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got == nil {
			t.Fatal("GetByID() returned nil")
		}
		if got.Device != "laptop" || got.FileRoot != "/home/alice/docs" {
			t.Errorf("got device=%q root=%q", got.Device, got.FileRoot)
		}
		if len(got.Schedule) != 1 {
			t.Fatalf("len(Schedule) = %d, want 1", len(got.Schedule))
		}
		rule := got.Schedule[0]
		if !rule.SameCadence(want.Schedule[0]) || !rule.LastExecution.Equal(t0) {
			t.Errorf("rule = %+v, want %+v", rule, want.Schedule[0])
		}
		if len(got.Snapshots) != 1 || !got.Snapshots[0].Equal(want.Snapshots[0]) {
			t.Errorf("snapshots = %+v, want %+v", got.Snapshots, want.Snapshots)
		}
	})

	t.Run("infinite durations survive", func(t *testing.T) {
		db := newTestDB(t)
		b := &model.Backup{ID: "forever", Device: "d", FileRoot: "/r"}
		b.Schedule.AddRule(model.ScheduleRule{SnapshotLifetime: model.InfiniteDuration, Interval: model.InfiniteDuration, LastExecution: t0})
		b.AddSnapshot(model.NewSnapshot(t0, model.InfiniteDuration, ref("alice", "aaaa"), nil))

		if err := db.Create("alice", b); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		got, _ := db.GetByID("alice", "forever")
		if !got.Schedule[0].SnapshotLifetime.IsInfinite() || !got.Schedule[0].Interval.IsInfinite() {
			t.Errorf("rule = %+v, want infinite durations", got.Schedule[0])
		}
		if got.Snapshots[0].ExpirationTime != nil {
			t.Errorf("ExpirationTime = %v, want nil", got.Snapshots[0].ExpirationTime)
		}
	})

	t.Run("duplicate create fails", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.Create("alice", sampleBackup()); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		err := db.Create("alice", sampleBackup())
		if !errors.Is(err, model.ErrAlreadyExists) {
			t.Errorf("second Create() error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("owners are separate", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.Create("alice", sampleBackup()); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := db.Create("bob", sampleBackup()); err != nil {
			t.Fatalf("Create() for bob error = %v", err)
		}
		got, _ := db.GetByID("carol", "docs")
		if got != nil {
			t.Errorf("GetByID() for carol = %v, want nil", got)
		}
	})
}

func TestSQLiteDatabase_Update(t *testing.T) {
	t.Run("missing backup", func(t *testing.T) {
		db := newTestDB(t)
		err := db.Update("alice", sampleBackup())
		if !errors.Is(err, model.ErrBackupNotFound) || !errors.Is(err, model.ErrNotFound) {
			t.Errorf("Update() error = %v, want ErrBackupNotFound", err)
		}
	})

	t.Run("merges snapshots and replaces schedule", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.Create("alice", sampleBackup()); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		t1 := t0.Add(24 * time.Hour)
		b, _ := db.GetByID("alice", "docs")
		b.Touch(model.Month, model.Limited(24*time.Hour), t1)
		second := model.NewSnapshot(t1, model.Month, ref("alice", "dddd"), []model.BlobIdentifier{ref("alice", "bbbb")})
		b.AddSnapshot(second)

		if err := db.Update("alice", b); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		// A second update with the same content is a no-op.
		if err := db.Update("alice", b); err != nil {
			t.Fatalf("second Update() error = %v", err)
		}

		got, _ := db.GetByID("alice", "docs")
		if len(got.Snapshots) != 2 {
			t.Fatalf("len(Snapshots) = %d, want 2", len(got.Snapshots))
		}
		if !got.Snapshots[1].Equal(second) {
			t.Errorf("Snapshots[1] = %+v, want %+v", got.Snapshots[1], second)
		}
		if len(got.Schedule) != 1 || !got.Schedule[0].LastExecution.Equal(t1) {
			t.Errorf("schedule = %+v, want single rule executed at %v", got.Schedule, t1)
		}
	})

	t.Run("never removes stored snapshots", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.Create("alice", sampleBackup()); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		stripped := sampleBackup()
		stripped.Snapshots = nil
		if err := db.Update("alice", stripped); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		got, _ := db.GetByID("alice", "docs")
		if len(got.Snapshots) != 1 {
			t.Errorf("len(Snapshots) = %d, want 1", len(got.Snapshots))
		}
	})
}

func TestSQLiteDatabase_GetAll(t *testing.T) {
	db := newTestDB(t)
	for _, id := range []model.BackupID{"zeta", "alpha", "mid"} {
		b := sampleBackup()
		b.ID = id
		if err := db.Create("alice", b); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}
	other := sampleBackup()
	other.ID = "bobs"
	if err := db.Create("bob", other); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := db.GetAll("alice")
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	var ids []model.BackupID
	for _, b := range got {
		ids = append(ids, b.ID)
		if len(b.Snapshots) != 1 || len(b.Snapshots[0].BlobRefs) != 3 {
			t.Errorf("backup %s: snapshots not loaded: %+v", b.ID, b.Snapshots)
		}
	}
	want := []model.BackupID{"alpha", "mid", "zeta"}
	if len(ids) != len(want) {
		t.Fatalf("GetAll() ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("GetAll() ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	db := newTestDB(t)

	first, err := db.CreateOperation("backup create", "docs")
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	second, err := db.CreateOperation("backup restore", "docs")
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("ids not increasing: %d then %d", first.ID, second.ID)
	}
	if err := db.FinishOperation(first.ID, "success"); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}

	ops, err := db.ListOperations(10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(ops))
	}
	if ops[0].ID != second.ID {
		t.Errorf("ops[0].ID = %d, want newest %d", ops[0].ID, second.ID)
	}
	if ops[1].Status != "success" || ops[1].FinishedAt == nil {
		t.Errorf("finished op = %+v", ops[1])
	}
	if ops[0].Status != "running" || ops[0].FinishedAt != nil {
		t.Errorf("running op = %+v", ops[0])
	}

	limited, _ := db.ListOperations(1)
	if len(limited) != 1 {
		t.Errorf("ListOperations(1) returned %d", len(limited))
	}
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	db := newTestDB(t)
	if err := db.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() error = %v", err)
	}
}
