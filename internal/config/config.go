package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for guardian.
type Config struct {
	UserID     string           `toml:"user_id"`
	DeviceID   string           `toml:"device_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Repository RepositoryConfig `toml:"repository"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Hashing    HashingConfig    `toml:"hashing"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Sync       SyncConfig       `toml:"sync"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
}

// RepositoryConfig selects where backup records and blobs live.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RepositoryConfig struct {
	Type string `toml:"type"` // "local" (default) or "remote"

	// Remote-specific fields (only used when Type == "remote")
	URL     string `toml:"url,omitempty"`
	Token   string `toml:"token,omitempty"`
	Timeout string `toml:"timeout,omitempty"` // Go duration, defaults to 30s
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// HashingConfig lists the hash algorithms to register. Preferences
// override the built-in ranking per algorithm name.
type HashingConfig struct {
	Algorithms  []string       `toml:"algorithms,omitempty"`
	Preferences map[string]int `toml:"preferences,omitempty"`
}

// VaultConfig represents configuration for the local blob store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores such as MinIO
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// SyncConfig tunes backup and restore runs.
type SyncConfig struct {
	Workers       int    `toml:"workers"`        // concurrent blob uploads, defaults to 4
	RetryAttempts uint   `toml:"retry_attempts"` // whole-operation attempts, defaults to 1
	RetryDelay    string `toml:"retry_delay"`    // Go duration between attempts
}

// ServerConfig configures `guardian serve`.
type ServerConfig struct {
	Listen string `toml:"listen"`
	// Users maps user IDs to bearer tokens. When empty the server trusts
	// the user named in each call.
	Users map[string]string `toml:"users,omitempty"`
}

// LogConfig controls log file rotation.
type LogConfig struct {
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
}

// NewConfig creates a new Config with the provided values and defaults
// for a local, filesystem-backed setup under baseDir.
func NewConfig(userID, deviceID, baseDir string) *Config {
	return &Config{
		UserID:     userID,
		DeviceID:   deviceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Repository: RepositoryConfig{Type: "local"},
		Vault:      VaultConfig{Type: "filesystem", FSVaultRoot: filepath.Join(baseDir, "vault")},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "guardian.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "guardian.key"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Sync:     SyncConfig{Workers: 4, RetryAttempts: 1, RetryDelay: "2s"},
		Server:   ServerConfig{Listen: "127.0.0.1:4080"},
		Log:      LogConfig{MaxSizeMB: 10, MaxBackups: 3},
	}
}

// Validate rejects unknown backend types and missing per-type fields.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	switch c.Repository.Type {
	case "", "local":
	case "remote":
		if c.Repository.URL == "" {
			return fmt.Errorf("repository.url is required for remote repositories")
		}
		if _, err := c.Repository.TimeoutDuration(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown repository type: %s", c.Repository.Type)
	}

	// A remote repository keeps blobs on the server; the local vault
	// section is then only checked when it names a known type.
	if err := c.Vault.validate(); err != nil && (c.Repository.Type != "remote" || knownVaultType(c.Vault.Type)) {
		return err
	}
	if err := c.Database.validate(); err != nil {
		return err
	}

	if _, err := c.Sync.RetryDelayDuration(); err != nil {
		return err
	}
	return nil
}

// ValidateServer checks the settings used by the repository server. A
// server stores blobs itself, so it needs a concrete vault and database
// but no user.
func (c *Config) ValidateServer() error {
	if err := c.Vault.validate(); err != nil {
		return err
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	return nil
}

func knownVaultType(t string) bool {
	return t == "memory" || t == "filesystem" || t == "s3"
}

func (v VaultConfig) validate() error {
	switch v.Type {
	case "memory":
	case "filesystem":
		if v.FSVaultRoot == "" {
			return fmt.Errorf("vault.fs_vault_root is required for filesystem vaults")
		}
	case "s3":
		if v.S3Bucket == "" {
			return fmt.Errorf("vault.s3_bucket is required for s3 vaults")
		}
	default:
		return fmt.Errorf("unknown vault type: %s", v.Type)
	}
	return nil
}

func (d DatabaseConfig) validate() error {
	switch d.Type {
	case "memory":
	case "sqlite":
		if d.DataDir == "" {
			return fmt.Errorf("database.data_dir is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown database type: %s", d.Type)
	}
	return nil
}

// TimeoutDuration parses Timeout, defaulting to 30 seconds.
func (r RepositoryConfig) TimeoutDuration() (time.Duration, error) {
	if r.Timeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid repository.timeout: %w", err)
	}
	return d, nil
}

// RetryDelayDuration parses RetryDelay, defaulting to zero.
func (s SyncConfig) RetryDelayDuration() (time.Duration, error) {
	if s.RetryDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.RetryDelay)
	if err != nil {
		return 0, fmt.Errorf("invalid sync.retry_delay: %w", err)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold S3 secrets or server tokens.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
