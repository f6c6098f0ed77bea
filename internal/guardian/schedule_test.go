package guardian_test

import (
	"testing"
	"time"

	"guardian-go/internal/model"
	"guardian-go/internal/testutil"
)

func TestRunDue(t *testing.T) {
	env := testutil.NewTestEnv(t)
	setupSource(t, env)
	hourly := model.Limited(time.Hour)
	week := model.Limited(7 * 24 * time.Hour)

	if _, err := env.Service.CreateBackup("/src", "hourly", week, hourly); err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	if _, err := env.Service.CreateBackup("/src", "once", model.Month, model.InfiniteDuration); err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	laptop := env.NewService(testutil.TestUser, "laptop")
	if _, err := laptop.CreateBackup("/src", "elsewhere", week, hourly); err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}

	ran, err := env.Service.RunDue()
	if err != nil {
		t.Fatalf("RunDue() error = %v", err)
	}
	if len(ran) != 0 {
		t.Errorf("RunDue() before interval = %v, want none", ran)
	}

	env.Clock.Advance(90 * time.Minute)
	ran, err = env.Service.RunDue()
	if err != nil {
		t.Fatalf("RunDue() error = %v", err)
	}
	if len(ran) != 1 || ran[0] != "hourly" {
		t.Fatalf("RunDue() = %v, want [hourly]", ran)
	}

	backup, err := env.Service.GetBackup("hourly")
	if err != nil {
		t.Fatalf("GetBackup() error = %v", err)
	}
	if len(backup.Snapshots) != 2 {
		t.Fatalf("len(Snapshots) = %d, want 2", len(backup.Snapshots))
	}
	latest := backup.Snapshots[1]
	wantExp := env.Clock.Now().Add(7 * 24 * time.Hour)
	if latest.ExpirationTime == nil || !latest.ExpirationTime.Equal(wantExp) {
		t.Errorf("ExpirationTime = %v, want %v", latest.ExpirationTime, wantExp)
	}
	if !backup.Schedule[0].LastExecution.Equal(env.Clock.Now()) {
		t.Errorf("LastExecution = %v, want %v", backup.Schedule[0].LastExecution, env.Clock.Now())
	}

	ran, err = env.Service.RunDue()
	if err != nil {
		t.Fatalf("RunDue() error = %v", err)
	}
	if len(ran) != 0 {
		t.Errorf("RunDue() right after a run = %v, want none", ran)
	}

	other, err := laptop.GetBackup("elsewhere")
	if err != nil {
		t.Fatalf("GetBackup() error = %v", err)
	}
	if len(other.Snapshots) != 1 {
		t.Errorf("other device's backup has %d snapshots, want 1", len(other.Snapshots))
	}
}

func TestRunDue_ContinuesAfterFailure(t *testing.T) {
	env := testutil.NewTestEnv(t)
	setupSource(t, env)
	testutil.WriteFile(t, env.Fs, "/gone/file", "x", mtime)
	hourly := model.Limited(time.Hour)

	for _, b := range []struct {
		id   model.BackupID
		root string
	}{{"a-broken", "/gone"}, {"b-fine", "/src"}} {
		if _, err := env.Service.CreateBackup(b.root, b.id, model.Month, hourly); err != nil {
			t.Fatalf("CreateBackup(%s) error = %v", b.id, err)
		}
	}
	if err := env.Fs.RemoveAll("/gone"); err != nil {
		t.Fatal(err)
	}

	env.Clock.Advance(2 * time.Hour)
	ran, err := env.Service.RunDue()
	if err == nil {
		t.Error("RunDue() error = nil, want failure for a-broken")
	}
	if len(ran) != 1 || ran[0] != "b-fine" {
		t.Errorf("RunDue() = %v, want [b-fine]", ran)
	}
}
