// Package cmd implements the botdock subcommands.
package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/botdock/botdock/internal/cert"
	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/deploy"
	"github.com/botdock/botdock/internal/server"
	"github.com/botdock/botdock/internal/telegram"
)

// newRunner initializes everything a deployment or removal needs: the
// database, the container engine client, the certificate manager and the
// webhook registrar.
func newRunner(a *server.App) (*deploy.Runner, error) {
	if err := server.InitializeDB(a); err != nil {
		return nil, err
	}
	if err := common.DockerInit(&a.Config.ContainerEngine); err != nil {
		return nil, err
	}

	store := cert.NewStore()
	provider := cert.NewChallengeProvider()
	manager := cert.NewManager(&a.Config, a.DB, store, provider)
	registrar := telegram.NewRegistrar(&a.Config)

	return deploy.NewRunner(&a.Config, a.DB, manager, registrar), nil
}

// newTable builds the bordered table every listing command prints.
func newTable(headers ...string) *table.Table {
	baseStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := baseStyle.Bold(true).Foreground(lipgloss.Color("#54baff"))

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return baseStyle
		}).
		Headers(headers...)
}
