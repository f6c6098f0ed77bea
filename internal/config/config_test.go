package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		UserID:     "alice",
		DeviceID:   "laptop",
		BaseDir:    "/home/user/.local/share/guardian",
		LogDir:     "/home/user/.local/share/guardian/log",
		Repository: RepositoryConfig{Type: "remote", URL: "ws://backup.lan:4080/v1/exchange", Token: "s3cret"},
		Vault:      VaultConfig{Type: "filesystem", FSVaultRoot: "/backup/vault"},
		Encryption: EncryptionConfig{
			Enabled:        true,
			PublicKeyPath:  "/home/user/.local/share/guardian/keys/guardian.pub",
			PrivateKeyPath: "/home/user/.local/share/guardian/keys/guardian.key",
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/guardian/db"},
		Hashing: HashingConfig{
			Algorithms:  []string{"blake2b-512", "sha256"},
			Preferences: map[string]int{"sha256": 3},
		},
		Filesystem: FilesystemConfig{Ignore: []string{"*.log", ".git"}},
		Sync:       SyncConfig{Workers: 8, RetryAttempts: 3, RetryDelay: "5s"},
		Server:     ServerConfig{Listen: ":4080", Users: map[string]string{"alice": "s3cret"}},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.UserID != original.UserID {
		t.Errorf("UserID = %q, want %q", got.UserID, original.UserID)
	}
	if got.DeviceID != original.DeviceID {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, original.DeviceID)
	}
	if got.Repository != original.Repository {
		t.Errorf("Repository = %+v, want %+v", got.Repository, original.Repository)
	}
	if got.Vault.FSVaultRoot != "/backup/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vault.FSVaultRoot, "/backup/vault")
	}
	if !got.Encryption.Enabled {
		t.Error("Encryption.Enabled = false, want true")
	}
	if got.Hashing.Preferences["sha256"] != 3 {
		t.Errorf("Hashing.Preferences[sha256] = %d, want 3", got.Hashing.Preferences["sha256"])
	}
	if got.Sync != original.Sync {
		t.Errorf("Sync = %+v, want %+v", got.Sync, original.Sync)
	}
	if got.Server.Users["alice"] != "s3cret" {
		t.Errorf("Server.Users[alice] = %q, want %q", got.Server.Users["alice"], "s3cret")
	}
	if len(got.Filesystem.Ignore) != 2 {
		t.Fatalf("len(Filesystem.Ignore) = %d, want 2", len(got.Filesystem.Ignore))
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("user-1", "device-1", "/data/guardian")

	if cfg.UserID != "user-1" || cfg.DeviceID != "device-1" {
		t.Errorf("identity = %q/%q, want user-1/device-1", cfg.UserID, cfg.DeviceID)
	}
	if cfg.LogDir != "/data/guardian/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/guardian/log")
	}
	if cfg.Vault.FSVaultRoot != "/data/guardian/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", cfg.Vault.FSVaultRoot, "/data/guardian/vault")
	}
	if cfg.Encryption.PublicKeyPath != "/data/guardian/keys/guardian.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing user", func(c *Config) { c.UserID = "" }, true},
		{"unknown vault", func(c *Config) { c.Vault.Type = "tape" }, true},
		{"s3 without bucket", func(c *Config) { c.Vault = VaultConfig{Type: "s3"} }, true},
		{"remote without url", func(c *Config) { c.Repository = RepositoryConfig{Type: "remote"} }, true},
		{"remote with bad timeout", func(c *Config) { c.Repository = RepositoryConfig{Type: "remote", URL: "ws://x", Timeout: "soon"} }, true},
		{"remote ignores vault", func(c *Config) {
			c.Repository = RepositoryConfig{Type: "remote", URL: "ws://x"}
			c.Vault.Type = ""
		}, false},
		{"unknown database", func(c *Config) { c.Database.Type = "postgres" }, true},
		{"bad retry delay", func(c *Config) { c.Sync.RetryDelay = "later" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("u", "d", "/data")
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no user needed", func(c *Config) { c.UserID = "" }, false},
		{"vault required", func(c *Config) { c.Vault.Type = "" }, true},
		{"remote repository still needs vault", func(c *Config) {
			c.Repository = RepositoryConfig{Type: "remote", URL: "ws://x"}
			c.Vault.Type = ""
		}, true},
		{"filesystem vault without root", func(c *Config) { c.Vault = VaultConfig{Type: "filesystem"} }, true},
		{"unknown database", func(c *Config) { c.Database.Type = "postgres" }, true},
		{"missing listen address", func(c *Config) { c.Server.Listen = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("u", "d", "/data")
			tt.mutate(cfg)
			err := cfg.ValidateServer()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	d, err := RepositoryConfig{}.TimeoutDuration()
	if err != nil || d != 30*time.Second {
		t.Errorf("TimeoutDuration() = %v, %v, want 30s", d, err)
	}
	d, err = SyncConfig{RetryDelay: "250ms"}.RetryDelayDuration()
	if err != nil || d != 250*time.Millisecond {
		t.Errorf("RetryDelayDuration() = %v, %v, want 250ms", d, err)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "guardian.toml")
		cfg := NewConfig("u1", "d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "guardian.toml")
		cfg := NewConfig("u1", "d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "guardian.toml")
		cfg := NewConfig("read-test", "d1", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.UserID != "read-test" {
			t.Errorf("UserID = %q, want %q", got.UserID, "read-test")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/guardian.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
