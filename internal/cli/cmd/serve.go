package cmd

import (
	"github.com/spf13/cobra"

	"github.com/botdock/botdock/internal/server"
	"github.com/botdock/botdock/pkg/logger"
)

// NewServeCommand runs the daemon in the foreground until it is signaled.
func NewServeCommand(a *server.App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook proxy daemon",
		Run: func(cmd *cobra.Command, args []string) {
			if err := server.StartServer(cmd.Context(), a); err != nil {
				logger.Fatal("Server exited", "error", err)
			}
		},
	}
}
