package db

import (
	"database/sql"
	"time"
)

// Bot is one hosted bot row. Timestamps are stored as RFC3339 strings.
type Bot struct {
	Name        string
	Image       string
	ContainerID string
	Token       string
	SecretToken string
	WebhookURL  string
	Active      bool
	CreatedAt   string
	UpdatedAt   string
}

// SaveBot inserts or updates a bot row, preserving created_at on update.
func SaveBot(handle *sql.DB, bot *Bot) error {
	now := time.Now().Format(time.RFC3339)
	if bot.CreatedAt == "" {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	_, err := ExecWithRetry(handle, `
		INSERT INTO bot (name, image, container_id, token, secret_token, webhook_url, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			image = excluded.image,
			container_id = excluded.container_id,
			token = excluded.token,
			secret_token = excluded.secret_token,
			webhook_url = excluded.webhook_url,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, bot.Name, bot.Image, bot.ContainerID, bot.Token, bot.SecretToken, bot.WebhookURL, boolToInt(bot.Active), bot.CreatedAt, bot.UpdatedAt)
	return err
}

// GetBot returns the bot row by name, sql.ErrNoRows when absent.
func GetBot(handle *sql.DB, name string) (*Bot, error) {
	var bot Bot
	var active int
	err := handle.QueryRow(`
		SELECT name, image, container_id, token, secret_token, webhook_url, active, created_at, updated_at
		FROM bot WHERE name = ?
	`, name).Scan(&bot.Name, &bot.Image, &bot.ContainerID, &bot.Token, &bot.SecretToken, &bot.WebhookURL, &active, &bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	bot.Active = active != 0
	return &bot, nil
}

// ListBots returns all bot rows ordered by name.
func ListBots(handle *sql.DB) ([]Bot, error) {
	rows, err := QueryWithRetry(handle, `
		SELECT name, image, container_id, token, secret_token, webhook_url, active, created_at, updated_at
		FROM bot ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []Bot
	for rows.Next() {
		var bot Bot
		var active int
		if err := rows.Scan(&bot.Name, &bot.Image, &bot.ContainerID, &bot.Token, &bot.SecretToken, &bot.WebhookURL, &active, &bot.CreatedAt, &bot.UpdatedAt); err != nil {
			return nil, err
		}
		bot.Active = active != 0
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

// CountActiveBots returns the number of bot rows currently marked active.
func CountActiveBots(handle *sql.DB) (int, error) {
	var n int
	err := handle.QueryRow(`SELECT COUNT(*) FROM bot WHERE active = 1`).Scan(&n)
	return n, err
}

// SetBotActive flips the active flag, driven by container lifecycle events.
func SetBotActive(handle *sql.DB, name string, active bool) error {
	_, err := ExecWithRetry(handle, `
		UPDATE bot SET active = ?, updated_at = ? WHERE name = ?
	`, boolToInt(active), time.Now().Format(time.RFC3339), name)
	return err
}

// DeleteBot removes the bot row.
func DeleteBot(handle *sql.DB, name string) error {
	_, err := ExecWithRetry(handle, `DELETE FROM bot WHERE name = ?`, name)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
