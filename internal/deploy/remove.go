package deploy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/pkg/docker"
	"github.com/botdock/botdock/pkg/logger"
	"github.com/botdock/botdock/pkg/validation"
)

// RemoveRequest describes a bot teardown.
type RemoveRequest struct {
	Bot string
	// Purge drops the registry row entirely instead of marking it
	// inactive.
	Purge bool
	// KeepWebhook leaves the Telegram webhook registered.
	KeepWebhook bool
}

// Remove stops and removes the bot's container, deletes its webhook and
// updates the registry. Pieces that are already gone are skipped, so
// removal is idempotent.
func (r *Runner) Remove(ctx context.Context, req RemoveRequest) error {
	if err := validation.ValidateBotName(req.Bot); err != nil {
		return err
	}

	bot, err := db.GetBot(r.handle, req.Bot)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("could not read bot registry: %w", err)
		}
		bot = nil
	}

	existing, err := docker.FindContainerByName(ctx, req.Bot)
	if err != nil {
		return fmt.Errorf("could not look up container %s: %w", req.Bot, err)
	}
	if existing == nil && bot == nil {
		return fmt.Errorf("no bot named %s on this host", req.Bot)
	}

	if existing != nil {
		if err := docker.StopContainer(ctx, existing.ID); err != nil {
			return fmt.Errorf("could not stop container: %w", err)
		}
		if err := docker.RemoveContainer(ctx, existing.ID); err != nil {
			return fmt.Errorf("could not remove container: %w", err)
		}
		logger.Info("Removed bot container", "bot", req.Bot, "id", shortID(existing.ID))
	}

	if !req.KeepWebhook && bot != nil && bot.Token != "" {
		if err := r.registrar.Deregister(ctx, req.Bot, bot.Token); err != nil {
			logger.Warn("Could not remove webhook", "bot", req.Bot, "error", err)
		}
	}

	if bot == nil {
		return nil
	}
	if req.Purge {
		if err := db.DeleteBot(r.handle, req.Bot); err != nil {
			return fmt.Errorf("could not delete bot row: %w", err)
		}
		logger.Info("Purged bot from registry", "bot", req.Bot)
		return nil
	}
	if err := db.SetBotActive(r.handle, req.Bot, false); err != nil {
		return fmt.Errorf("could not update bot row: %w", err)
	}
	logger.Info("Marked bot inactive", "bot", req.Bot)
	return nil
}
