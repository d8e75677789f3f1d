package cmd

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/botdock/botdock/internal/proxy"
	"github.com/botdock/botdock/internal/server"
)

// NewRoutesCommand asks the running daemon which webhook routes it serves.
// Unlike "bots" this reflects the proxy's in-memory table, so it shows
// exactly what traffic will hit.
func NewRoutesCommand(a *server.App) *cobra.Command {
	var (
		addr     string
		insecure bool
	)

	routesCmd := &cobra.Command{
		Use:           "routes",
		Short:         "List the webhook routes the running daemon serves",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := a.Config.Admin.Secret
			if secret == "" {
				return errors.New("no admin secret in config.yml, start the daemon once to generate it")
			}
			token, err := proxy.MintAdminToken(secret)
			if err != nil {
				return err
			}

			base := addr
			if base == "" {
				if a.Config.Proxy.Domain == "" {
					return errors.New("no public domain configured, set proxy.domain in config.yml or BOTDOCK_DOMAIN")
				}
				base = "https://" + a.Config.Proxy.Domain
			}

			client := &http.Client{Timeout: 10 * time.Second}
			if insecure {
				client.Transport = &http.Transport{
					TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
				}
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base+"/admin/bots", nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("could not reach the daemon at %s: %w", base, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon answered %d: %s", resp.StatusCode, string(body))
			}

			var routes []struct {
				Name       string `json:"name"`
				Image      string `json:"image"`
				Active     bool   `json:"active"`
				WebhookURL string `json:"webhook_url"`
				UpdatedAt  string `json:"updated_at"`
			}
			if err := json.Unmarshal(body, &routes); err != nil {
				return fmt.Errorf("could not decode daemon response: %w", err)
			}
			if len(routes) == 0 {
				fmt.Println("The daemon serves no bot routes yet.")
				return nil
			}

			t := newTable("NAME", "IMAGE", "ACTIVE", "WEBHOOK", "UPDATED")
			for _, route := range routes {
				active := "no"
				if route.Active {
					active = "yes"
				}
				t.Row(route.Name, route.Image, active, route.WebhookURL, route.UpdatedAt)
			}
			fmt.Println(t)
			return nil
		},
	}

	routesCmd.Flags().StringVar(&addr, "addr", "", "daemon base URL (default https://<proxy.domain>)")
	routesCmd.Flags().BoolVarP(&insecure, "insecure", "k", false, "skip TLS verification, for self-signed setups")
	return routesCmd
}
