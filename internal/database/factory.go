package database

import (
	"fmt"
	"path/filepath"

	"capture-go/internal/capture"
	"capture-go/internal/config"
)

// NewDatabaseFromConfig creates a SQLiteDatabase based on the database config type.
// The returned database is migrated to the latest schema.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, deviceName string, clock capture.Clock) (*SQLiteDatabase, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		path = filepath.Join(cfg.DataDir, deviceName+".db")
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path, clock)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}
