package guardian_test

import (
	"errors"
	"testing"
	"time"

	"guardian-go/internal/model"
	"guardian-go/internal/testutil"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env *testutil.Env)
		root  string
		want  []string
	}{
		{
			name: "source unchanged",
			root: "/src",
		},
		{
			name: "missing root",
			root: "/nowhere",
			want: []string{"created /nowhere/a.txt", "created /nowhere/sub"},
		},
		{
			name: "modified and added",
			setup: func(t *testing.T, env *testutil.Env) {
				testutil.WriteFile(t, env.Fs, "/src/a.txt", "changed", mtime.Add(time.Hour))
				testutil.WriteFile(t, env.Fs, "/src/sub/new.txt", "new", mtime)
			},
			root: "/src",
			want: []string{"updated /src/a.txt", "deleted /src/sub/new.txt"},
		},
		{
			name: "touched without content change",
			setup: func(t *testing.T, env *testutil.Env) {
				testutil.WriteFile(t, env.Fs, "/src/a.txt", "0123456789", mtime.Add(time.Second))
			},
			root: "/src",
			want: []string{"updated /src/a.txt"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewTestEnv(t)
			backupSource(t, env)
			if tt.setup != nil {
				tt.setup(t, env)
			}

			diffs, err := env.Service.Status(tt.root, "docs")
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			var got []string
			for _, d := range diffs {
				got = append(got, d.String())
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Status() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Status()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStatus_DoesNotTouchFilesystem(t *testing.T) {
	env := testutil.NewTestEnv(t)
	backupSource(t, env)
	testutil.WriteFile(t, env.Fs, "/dst/extra", "x", mtime)
	before := testutil.Snapshot(t, env.Fs, "/dst")

	if _, err := env.Service.Status("/dst", "docs"); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	after := testutil.Snapshot(t, env.Fs, "/dst")
	if len(before) != len(after) {
		t.Errorf("Status() changed the target: %v -> %v", before, after)
	}
	if env.Vault.FetchCalls.Load() != 1 {
		t.Errorf("Fetch calls = %d, want 1 (tree only)", env.Vault.FetchCalls.Load())
	}
}

func TestStatus_UnknownBackup(t *testing.T) {
	env := testutil.NewTestEnv(t)
	if _, err := env.Service.Status("/src", "missing"); !errors.Is(err, model.ErrBackupNotFound) {
		t.Errorf("Status() error = %v, want ErrBackupNotFound", err)
	}
}

func TestLatestTree(t *testing.T) {
	env := testutil.NewTestEnv(t)
	backupSource(t, env)

	tree, err := env.Service.LatestTree("docs")
	if err != nil {
		t.Fatalf("LatestTree() error = %v", err)
	}
	if got := tree.TotalSize(); got != 30 {
		t.Errorf("TotalSize() = %d, want 30", got)
	}
	if tree.Child("sub") == nil || tree.Child("sub").Child("b.txt") == nil {
		t.Errorf("tree is missing sub/b.txt: %+v", tree)
	}
}
