package db

import (
	"database/sql"
	"time"
)

// Deployment is one pipeline run. ResultsJSON holds the marshaled step
// results so the history shows exactly what happened.
type Deployment struct {
	ID          string
	BotName     string
	Image       string
	Status      string
	ResultsJSON string
	StartedAt   string
	FinishedAt  string
}

// InsertDeployment records the start of a pipeline run.
func InsertDeployment(handle *sql.DB, d *Deployment) error {
	if d.StartedAt == "" {
		d.StartedAt = time.Now().Format(time.RFC3339)
	}
	_, err := ExecWithRetry(handle, `
		INSERT INTO deployment (id, bot_name, image, status, results_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.BotName, d.Image, d.Status, d.ResultsJSON, d.StartedAt, d.FinishedAt)
	return err
}

// FinishDeployment records the outcome of a pipeline run.
func FinishDeployment(handle *sql.DB, id, status, resultsJSON string) error {
	_, err := ExecWithRetry(handle, `
		UPDATE deployment SET status = ?, results_json = ?, finished_at = ? WHERE id = ?
	`, status, resultsJSON, time.Now().Format(time.RFC3339), id)
	return err
}

// ListDeployments returns the most recent runs for one bot, newest first.
// botName == "" lists across all bots.
func ListDeployments(handle *sql.DB, botName string, limit int) ([]Deployment, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, bot_name, image, status, COALESCE(results_json, ''), started_at, COALESCE(finished_at, '')
		FROM deployment
	`
	args := []any{}
	if botName != "" {
		query += ` WHERE bot_name = ?`
		args = append(args, botName)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := QueryWithRetry(handle, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Deployment
	for rows.Next() {
		var d Deployment
		if err := rows.Scan(&d.ID, &d.BotName, &d.Image, &d.Status, &d.ResultsJSON, &d.StartedAt, &d.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, d)
	}
	return runs, rows.Err()
}
