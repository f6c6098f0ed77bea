package vault

import (
	"fmt"

	"guardian-go/internal/config"
	"guardian-go/internal/guardian"
)

// NewVaultFromConfig creates a BlobStore implementation based on the vault config type.
func NewVaultFromConfig(cfg config.VaultConfig) (guardian.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
		}
		return NewS3VaultFromConfig(cfg)
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		return NewFileSystemVault(cfg.FSVaultRoot)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
