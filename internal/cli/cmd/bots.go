package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/internal/server"
	"github.com/botdock/botdock/internal/telegram"
	"github.com/botdock/botdock/pkg/docker"
	"github.com/botdock/botdock/pkg/logger"
)

// NewBotsCommand lists every bot registered on this host, with the live
// container state when the engine is reachable.
func NewBotsCommand(a *server.App) *cobra.Command {
	var check bool

	botsCmd := &cobra.Command{
		Use:   "bots",
		Short: "List bots hosted on this machine",
		Run: func(cmd *cobra.Command, args []string) {
			if err := server.InitializeDB(a); err != nil {
				logger.Fatal("Could not open database", "error", err)
			}

			bots, err := db.ListBots(a.DB)
			if err != nil {
				logger.Fatal("Could not list bots", "error", err)
			}
			if len(bots) == 0 {
				fmt.Println("No bots registered yet. Deploy one with \"botdock deploy\".")
				return
			}

			engineUp := common.DockerInit(&a.Config.ContainerEngine) == nil
			if !engineUp {
				logger.Warn("Container engine unreachable, live state unavailable")
			}

			headers := []string{"NAME", "IMAGE", "STATE", "UPTIME", "ACTIVE", "WEBHOOK", "UPDATED"}
			if check {
				headers = append(headers, "USERNAME", "REGISTERED")
			}
			t := newTable(headers...)

			for _, bot := range bots {
				state, uptime := "-", "-"
				if engineUp {
					state, uptime = containerStatus(cmd.Context(), bot.Name)
				}
				active := "no"
				if bot.Active {
					active = "yes"
				}
				row := []string{bot.Name, bot.Image, state, uptime, active, bot.WebhookURL, bot.UpdatedAt}
				if check {
					username, registered := botCheck(cmd.Context(), a.Config.Telegram.APIBase, bot.Token, bot.WebhookURL)
					row = append(row, username, registered)
				}
				t.Row(row...)
			}

			fmt.Println(t)
		},
	}

	botsCmd.Flags().BoolVar(&check, "check", false, "verify each token and webhook registration against the Telegram API")
	return botsCmd
}

// containerStatus returns the live state and uptime of the bot's container,
// "absent" when no container with that name exists.
func containerStatus(ctx context.Context, name string) (string, string) {
	container, err := docker.FindContainerByName(ctx, name)
	if err != nil || container == nil {
		return "absent", "-"
	}
	state, err := docker.GetContainerState(ctx, container.ID)
	if err != nil {
		return "unknown", "-"
	}

	uptime := "-"
	if state == "running" {
		if up, err := docker.GetContainerUptime(ctx, container.ID); err == nil {
			uptime = up
		}
	}
	return state, uptime
}

// botCheck resolves the bot's public username through getMe and compares the
// webhook Telegram actually has against the one this host registered. A getMe
// failure almost always means the token was revoked.
func botCheck(ctx context.Context, apiBase, token, wantURL string) (string, string) {
	if token == "" {
		return "-", "-"
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := telegram.NewClient(token, apiBase)
	user, err := client.GetMe(ctx)
	if err != nil {
		return "invalid token", "-"
	}

	registered := "-"
	if info, err := client.GetWebhookInfo(ctx); err == nil {
		switch {
		case info.URL == "":
			registered = "unset"
		case info.URL != wantURL:
			registered = "drift"
		default:
			registered = "yes"
		}
	}
	return "@" + user.Username, registered
}
