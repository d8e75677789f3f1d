package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/internal/server"
	"github.com/botdock/botdock/pkg/logger"
	"github.com/botdock/botdock/pkg/validation"
)

// NewDeploysCommand lists recent deployment runs and how their steps went.
func NewDeploysCommand(a *server.App) *cobra.Command {
	var limit int

	deploysCmd := &cobra.Command{
		Use:   "deploys [bot]",
		Short: "Show recent deployments for this host or one bot",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			botName := ""
			if len(args) == 1 {
				botName = args[0]
				if err := validation.ValidateBotName(botName); err != nil {
					logger.Fatal("Invalid bot name", "error", err)
				}
			}

			if err := server.InitializeDB(a); err != nil {
				logger.Fatal("Could not open database", "error", err)
			}

			runs, err := db.ListDeployments(a.DB, botName, limit)
			if err != nil {
				logger.Fatal("Could not list deployments", "error", err)
			}
			if len(runs) == 0 {
				fmt.Println("No deployments recorded yet. Deploy a bot with \"botdock deploy\".")
				return
			}

			t := newTable("ID", "BOT", "IMAGE", "STATUS", "STEPS", "STARTED", "TOOK")
			for _, run := range runs {
				t.Row(shortRunID(run.ID), run.BotName, run.Image, run.Status,
					stepSummary(run.ResultsJSON), run.StartedAt, runDuration(run))
			}
			fmt.Println(t)
		},
	}

	deploysCmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return deploysCmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// stepSummary condenses the persisted step results into "6 ok" or
// "3 ok, 1 failed, 2 skipped".
func stepSummary(resultsJSON string) string {
	if resultsJSON == "" {
		return "-"
	}

	var steps []struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(resultsJSON), &steps); err != nil || len(steps) == 0 {
		return "-"
	}

	counts := map[string]int{}
	for _, s := range steps {
		counts[s.Status]++
	}
	summary := fmt.Sprintf("%d ok", counts["ok"])
	for _, status := range []string{"warn", "failed", "skipped"} {
		if counts[status] > 0 {
			summary += fmt.Sprintf(", %d %s", counts[status], status)
		}
	}
	return summary
}

func runDuration(run db.Deployment) string {
	if run.FinishedAt == "" {
		return "-"
	}
	started, err := time.Parse(time.RFC3339, run.StartedAt)
	if err != nil {
		return "-"
	}
	finished, err := time.Parse(time.RFC3339, run.FinishedAt)
	if err != nil {
		return "-"
	}
	return finished.Sub(started).Round(time.Second).String()
}
