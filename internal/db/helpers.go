package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/botdock/botdock/pkg/logger"
)

const (
	maxRetries = 10
	retryDelay = 200 * time.Millisecond
)

// sqliteBusy matches the error modernc.org/sqlite returns when another
// connection holds the write lock.
func sqliteBusy(err error) bool {
	return err != nil && err.Error() == "database is locked (5) (SQLITE_BUSY)"
}

// ExecWithRetry performs a write with retry logic for a locked database.
func ExecWithRetry(handle *sql.DB, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	var err error
	delay := retryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err = handle.Exec(query, args...)
		if err == nil {
			return result, nil
		}

		if sqliteBusy(err) {
			logger.Debug("Database locked, retrying operation",
				"attempt", attempt,
				"max_retries", maxRetries)
			time.Sleep(delay)
			delay *= 2
			continue
		}

		return nil, err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", err)
}

// QueryWithRetry performs a query with retry logic for a locked database.
// The caller owns the returned rows.
func QueryWithRetry(handle *sql.DB, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error
	delay := retryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		rows, err = handle.Query(query, args...)
		if err == nil {
			return rows, nil
		}

		if sqliteBusy(err) {
			logger.Debug("Database locked, retrying query",
				"attempt", attempt,
				"max_retries", maxRetries)
			time.Sleep(delay)
			delay *= 2
			continue
		}

		return nil, err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", err)
}

// BeginWithRetry starts a transaction with retry logic for a locked database.
func BeginWithRetry(handle *sql.DB) (*sql.Tx, error) {
	var tx *sql.Tx
	var err error
	delay := retryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		tx, err = handle.Begin()
		if err == nil {
			return tx, nil
		}

		if sqliteBusy(err) {
			logger.Debug("Database locked, retrying transaction start",
				"attempt", attempt,
				"max_retries", maxRetries)
			time.Sleep(delay)
			delay *= 2
			continue
		}

		return nil, err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", err)
}

// TxExecWithRetry executes a statement inside a transaction with retry logic.
func TxExecWithRetry(tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	var err error
	delay := retryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err = tx.Exec(query, args...)
		if err == nil {
			return result, nil
		}

		if sqliteBusy(err) {
			logger.Debug("Database locked, retrying statement",
				"attempt", attempt,
				"max_retries", maxRetries)
			time.Sleep(delay)
			delay *= 2
			continue
		}

		return nil, err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", err)
}
