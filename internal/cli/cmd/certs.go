package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/botdock/botdock/internal/cert"
	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/internal/server"
	"github.com/botdock/botdock/pkg/logger"
)

// NewCertsCommand shows recorded certificate state and drives manual renewal.
func NewCertsCommand(a *server.App) *cobra.Command {
	certsCmd := &cobra.Command{
		Use:   "certs",
		Short: "Show TLS certificate state for the public domain",
		Run: func(cmd *cobra.Command, args []string) {
			if err := server.InitializeDB(a); err != nil {
				logger.Fatal("Could not open database", "error", err)
			}

			records, err := db.ListCertificates(a.DB)
			if err != nil {
				logger.Fatal("Could not list certificates", "error", err)
			}
			if len(records) == 0 {
				fmt.Println("No certificates recorded yet. The serve daemon provisions one on startup.")
				return
			}

			t := newTable("DOMAIN", "STATE", "ISSUER", "EXPIRES", "UPDATED")
			for _, rec := range records {
				t.Row(rec.Domain, rec.State, rec.Issuer, rec.ExpiresAt, rec.UpdatedAt)
			}
			fmt.Println(t)
		},
	}

	certsCmd.AddCommand(newCertsRenewCommand(a))
	return certsCmd
}

func newCertsRenewCommand(a *server.App) *cobra.Command {
	var force bool

	renewCmd := &cobra.Command{
		Use:           "renew",
		Short:         "Renew the certificate for the public domain",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := a.Config.Proxy.Domain
			if domain == "" {
				return errors.New("no public domain configured, set proxy.domain in config.yml or BOTDOCK_DOMAIN")
			}
			if err := server.InitializeDB(a); err != nil {
				return err
			}

			store := cert.NewStore()
			provider := cert.NewChallengeProvider()
			manager := cert.NewManager(&a.Config, a.DB, store, provider)

			var err error
			if force {
				err = manager.ForceRenew(cmd.Context(), domain)
			} else {
				err = manager.Renew(cmd.Context(), domain)
			}
			if err != nil {
				return err
			}

			color.Green("Certificate for %s is up to date.", domain)
			return nil
		},
	}

	renewCmd.Flags().BoolVar(&force, "force", false, "renew even when the certificate is not close to expiry")
	return renewCmd
}
