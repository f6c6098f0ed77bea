package testutil

import (
	"testing"

	"github.com/spf13/afero"

	"guardian-go/internal/database"
	"guardian-go/internal/encoding"
	gfs "guardian-go/internal/fs"
	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// TestUser owns everything created through NewTestEnv.
const TestUser model.UserIdentifier = "alice"

// Env bundles a GuardianService with direct handles on its collaborators.
type Env struct {
	Service *guardian.GuardianService
	Repo    *database.SQLiteDatabase
	Vault   *FaultyVault
	Files   *gfs.FileService
	Fs      afero.Fs
	Clock   *StubClock
}

// NewTestEnv wires a GuardianService over in-memory collaborators.
func NewTestEnv(t *testing.T) *Env {
	t.Helper()
	files, fsys := NewTestFileService()
	env := &Env{
		Repo:  NewTestRepository(t),
		Vault: NewFaultyVault(NewTestVault()),
		Files: files,
		Fs:    fsys,
		Clock: FixedClock(),
	}
	env.Service = env.NewService(TestUser, model.DefaultDevice)
	return env
}

// NewService creates another service sharing the env's stores, acting as
// user on device.
func (e *Env) NewService(user model.UserIdentifier, device model.DeviceIdentifier) *guardian.GuardianService {
	return guardian.NewGuardianService(user, device,
		e.Repo, e.Vault, NewTestHashService(), encoding.NewYAMLEncoder(), e.Files,
		guardian.NewNopLogger(), e.Clock, NewStubIDGenerator())
}
