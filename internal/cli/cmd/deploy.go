package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/botdock/botdock/internal/cli/ui"
	"github.com/botdock/botdock/internal/deploy"
	"github.com/botdock/botdock/internal/server"
)

// NewDeployCommand deploys one bot: image, container, health, webhook.
func NewDeployCommand(a *server.App) *cobra.Command {
	var (
		image        string
		buildDir     string
		envFile      string
		token        string
		secret       string
		skipRegister bool
		dryRun       bool
		plain        bool
	)

	deployCmd := &cobra.Command{
		Use:           "deploy <bot>",
		Short:         "Deploy a bot container and register its webhook",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newRunner(a)
			if err != nil {
				return err
			}

			req := deploy.Request{
				Bot:          args[0],
				Image:        image,
				BuildDir:     buildDir,
				EnvFile:      envFile,
				Token:        token,
				Secret:       secret,
				SkipRegister: skipRegister,
				DryRun:       dryRun,
			}

			if dryRun {
				results, err := runner.Deploy(cmd.Context(), req)
				if err != nil {
					return err
				}
				color.Blue("Deployment plan for %s:", req.Bot)
				for _, res := range results {
					fmt.Printf("  %-20s %s\n", res.Step, res.Detail)
				}
				return nil
			}

			color.Blue("Deploying bot: %s", req.Bot)

			if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
				results, err := runner.Deploy(cmd.Context(), req)
				printDeploySummary(results, err)
				if err != nil {
					return err
				}
			} else {
				// The interactive view already printed one line per step.
				if _, err := ui.RunDeploy(cmd.Context(), runner, req); err != nil {
					color.Red("Deployment failed.")
					return err
				}
				color.Green("Deployment successful!")
			}

			fmt.Println("Webhook endpoint:", a.Config.Proxy.WebhookURL(req.Bot))
			return nil
		},
	}

	deployCmd.Flags().StringVarP(&image, "image", "i", "", "image reference to run")
	deployCmd.Flags().StringVarP(&buildDir, "build", "b", "", "build the image from this directory instead of pulling")
	deployCmd.Flags().StringVarP(&envFile, "env-file", "e", "", "env file injected into the container")
	deployCmd.Flags().StringVarP(&token, "token", "t", "", "bot token (falls back to BOT_TOKEN in the env file)")
	deployCmd.Flags().StringVar(&secret, "secret", "", "webhook secret token Telegram echoes back on updates")
	deployCmd.Flags().BoolVar(&skipRegister, "skip-register", false, "do not register the webhook with Telegram")
	deployCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the step plan without touching anything")
	deployCmd.Flags().BoolVar(&plain, "plain", false, "log step progress instead of the interactive display")

	return deployCmd
}

func printDeploySummary(results []deploy.Result, runErr error) {
	fmt.Println()
	for _, res := range results {
		switch res.Status {
		case deploy.StatusOK:
			color.Green("  ✓ %s", res.Step)
		case deploy.StatusWarn:
			color.Yellow("  ! %s: %s", res.Step, res.Detail)
		case deploy.StatusFailed:
			color.Red("  ✗ %s: %s", res.Step, res.Detail)
		default:
			color.New(color.FgHiBlack).Printf("  - %s (%s)\n", res.Step, res.Detail)
		}
	}
	fmt.Println()

	if runErr != nil {
		color.Red("Deployment failed.")
		return
	}
	color.Green("Deployment successful!")
}
