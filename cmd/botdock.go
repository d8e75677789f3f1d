package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/botdock/botdock/internal/cli/cmd"
	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "botdock",
	Short: "Webhook hosting for Telegram bots",
	Long: `botdock runs Telegram bots as containers behind a single HTTPS
endpoint. It terminates TLS, routes /webhook/<bot> to the bot's container,
and keeps certificates and webhook registrations in order.`,
}

// InitializeCommands registers every subcommand on the root.
func InitializeCommands(a *server.App) {
	rootCmd.AddCommand(cmd.NewServeCommand(a))
	rootCmd.AddCommand(cmd.NewDeployCommand(a))
	rootCmd.AddCommand(cmd.NewDeploysCommand(a))
	rootCmd.AddCommand(cmd.NewRemoveCommand(a))
	rootCmd.AddCommand(cmd.NewBotsCommand(a))
	rootCmd.AddCommand(cmd.NewCertsCommand(a))
	rootCmd.AddCommand(cmd.NewRoutesCommand(a))
	rootCmd.AddCommand(cmd.NewVersionCommand(a))
}

// ExecuteCLI wires build information into the app and runs the CLI.
func ExecuteCLI(build, commit, date string) {
	buildInfo := &common.BuildConfig{
		BuildVersion: build,
		BuildCommit:  commit,
		BuildDate:    date,
	}

	a, err := server.NewServerApp(buildInfo)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing botdock:", err)
		os.Exit(1)
	}

	InitializeCommands(a)
	cobra.CheckErr(rootCmd.Execute())
}
