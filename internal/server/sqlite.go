package server

import (
	"fmt"

	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/pkg/logger"
)

// InitializeDB opens the SQLite store under the storage dir and bootstraps
// the schema. Idempotent.
func InitializeDB(a *App) error {
	if a.DB != nil {
		return nil
	}

	handle, path, err := db.Open(a.DBDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	a.DB = handle
	a.DBPath = path
	logger.Debug("Database ready", "path", path)
	return nil
}

// CloseDB closes the database connection if one is open.
func CloseDB(a *App) error {
	if a.DB == nil {
		return nil
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	a.DB = nil
	return nil
}
