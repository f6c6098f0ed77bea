package database

import (
	"fmt"
	"os"
	"path/filepath"

	"guardian-go/internal/config"
)

// NewDatabaseFromConfig opens the database named name according to cfg.
// A sqlite database lives at <data_dir>/<name>.db.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, name string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, name+".db"))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
