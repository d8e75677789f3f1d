package server

import (
	"context"
	"database/sql"
	"errors"

	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/pkg/docker"
	"github.com/botdock/botdock/pkg/logger"
)

// startContainerWatch keeps the active flag on bot rows in sync with engine
// lifecycle events, so /status and the bots listing reflect crashed or
// manually stopped containers.
func (a *App) startContainerWatch() {
	err := docker.ListenForContainerEvents(a.Config.ContainerEngine.Network, docker.ContainerEventHandler{
		OnStart: func(containerID, botName string) {
			a.markBotActive(botName, true)
		},
		OnStop: func(containerID, botName string) {
			a.markBotActive(botName, false)
		},
	})
	if err != nil {
		logger.Warn("Container event listener unavailable, bot active flags will go stale",
			"error", err)
	}
}

// reconcileBotStates aligns the registry's active flags with the containers
// that actually exist. Lifecycle events that fired while the daemon was down
// are gone, so the flags can be arbitrarily stale at startup.
func (a *App) reconcileBotStates(ctx context.Context) {
	containers, err := docker.ListManagedContainers(ctx)
	if err != nil {
		logger.Warn("Could not list containers for state reconciliation", "error", err)
		return
	}

	running := make(map[string]bool, len(containers))
	for _, c := range containers {
		name := c.Labels[docker.BotLabel]
		if name == "" {
			continue
		}
		running[name] = c.State == "running"
	}

	bots, err := db.ListBots(a.DB)
	if err != nil {
		logger.Error("Failed to list bots for state reconciliation", "error", err)
		return
	}
	for _, bot := range bots {
		a.markBotActive(bot.Name, running[bot.Name])
	}
}

// markBotActive flips a bot row's active flag. Events for names without a
// row come from containers this daemon does not manage.
func (a *App) markBotActive(botName string, active bool) {
	if botName == "" {
		return
	}

	bot, err := db.GetBot(a.DB, botName)
	if errors.Is(err, sql.ErrNoRows) {
		logger.Debug("Ignoring container event for unmanaged name", "name", botName)
		return
	}
	if err != nil {
		logger.Error("Failed to look up bot for container event",
			"bot", botName,
			"error", err)
		return
	}
	if bot.Active == active {
		return
	}

	if err := db.SetBotActive(a.DB, botName, active); err != nil {
		logger.Error("Failed to update bot active flag",
			"bot", botName,
			"active", active,
			"error", err)
		return
	}

	logger.Info("Bot container state changed", "bot", botName, "active", active)
}
