// Package server owns the daemon lifecycle: configuration, the SQLite
// store, certificate provisioning and the proxy listeners.
package server

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/pkg/logger"
)

// App carries daemon-wide state shared by the serve command and the CLI
// commands that need the store.
type App struct {
	Config    common.Config
	DB        *sql.DB
	DBDir     string
	DBPath    string
	StartTime time.Time
}

// NewServerApp loads configuration and prepares the App. The database is
// opened separately through InitializeDB so commands that never touch state
// can skip it.
func NewServerApp(buildConfig *common.BuildConfig) (*App, error) {
	config := common.Config{}
	if buildConfig != nil {
		config.Build = *buildConfig
	}

	if _, err := config.LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	a := &App{
		Config:    config,
		DBDir:     filepath.Join(config.General.StorageDir, "db"),
		StartTime: time.Now(),
	}

	return a, nil
}

// GetConfig returns the configuration.
func (a *App) GetConfig() *common.Config {
	return &a.Config
}

// GetUptime returns how long the App has been running.
func (a *App) GetUptime() time.Duration {
	return time.Since(a.StartTime)
}

// Shutdown closes everything the App holds open.
func (a *App) Shutdown() error {
	logger.Info("Initiating application shutdown")

	if err := CloseDB(a); err != nil {
		logger.Error("Error during database shutdown", "error", err)
		return err
	}

	logger.Info("Application shutdown completed")
	return nil
}
