// Package db owns the SQLite state store: schema bootstrap plus typed
// accessors for the bot, certificate, acme_account and deployment tables.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/botdock/botdock/pkg/logger"
)

// Filename is the database file name inside the storage directory.
const Filename = "botdock.db"

const schema = `
	CREATE TABLE IF NOT EXISTS bot (
		name TEXT PRIMARY KEY,
		image TEXT NOT NULL,
		container_id TEXT,
		token TEXT NOT NULL,
		secret_token TEXT,
		webhook_url TEXT,
		active INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS certificate (
		domain TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		issuer TEXT,
		issued_at TEXT,
		expires_at TEXT,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS acme_account (
		email TEXT PRIMARY KEY,
		private_key_pem TEXT NOT NULL,
		registration_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS deployment (
		id TEXT PRIMARY KEY,
		bot_name TEXT NOT NULL,
		image TEXT NOT NULL,
		status TEXT NOT NULL,
		results_json TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);
`

// Open ensures the storage directory exists, opens the database file and
// bootstraps the schema. Returns the handle and the resolved file path.
func Open(dir string) (*sql.DB, string, error) {
	if dir == "" {
		return nil, "", fmt.Errorf("storage directory is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	path := filepath.Join(dir, Filename)
	fresh := !fileExists(path)

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	if err := bootstrap(handle); err != nil {
		handle.Close()
		return nil, "", err
	}

	if fresh {
		logger.Debug("Initialized new database", "path", path)
	}
	return handle, path, nil
}

// bootstrap creates the tables in one transaction. Idempotent, and safe to
// race against another process opening the same file.
func bootstrap(handle *sql.DB) error {
	tx, err := BeginWithRetry(handle)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	if _, err := TxExecWithRetry(tx, schema); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
