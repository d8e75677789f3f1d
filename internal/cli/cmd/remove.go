package cmd

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/botdock/botdock/internal/deploy"
	"github.com/botdock/botdock/internal/server"
)

// NewRemoveCommand tears a bot down: container, webhook, registry row.
func NewRemoveCommand(a *server.App) *cobra.Command {
	var (
		yes         bool
		purge       bool
		keepWebhook bool
	)

	removeCmd := &cobra.Command{
		Use:           "remove <bot>",
		Short:         "Stop a bot and remove it from this host",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bot := args[0]

			if !yes {
				confirm := false
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Remove bot %q? Its container will be stopped and its webhook deleted.", bot),
				}
				if err := survey.AskOne(prompt, &confirm); err != nil {
					return err
				}
				if !confirm {
					fmt.Println("The command has been cancelled.")
					return nil
				}
			}

			runner, err := newRunner(a)
			if err != nil {
				return err
			}

			err = runner.Remove(cmd.Context(), deploy.RemoveRequest{
				Bot:         bot,
				Purge:       purge,
				KeepWebhook: keepWebhook,
			})
			if err != nil {
				return err
			}

			color.Green("Bot %s removed.", bot)
			return nil
		},
	}

	removeCmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	removeCmd.Flags().BoolVar(&purge, "purge", false, "delete the registry row instead of marking it inactive")
	removeCmd.Flags().BoolVar(&keepWebhook, "keep-webhook", false, "leave the Telegram webhook registered")

	return removeCmd
}
