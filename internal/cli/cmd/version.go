package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/botdock/botdock/internal/server"
)

const latestReleaseURL = "https://api.github.com/repos/botdock/botdock/releases/latest"

// NewVersionCommand prints build information. With --check it also asks
// GitHub whether a newer release exists.
func NewVersionCommand(a *server.App) *cobra.Command {
	var check bool

	versionCmd := &cobra.Command{
		Use:           "version",
		Short:         "Show version information",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			build := a.Config.Build
			fmt.Printf("botdock %s\n", a.Config.GetVersion())
			if build.BuildCommit != "" {
				fmt.Printf("Commit: %s\n", build.BuildCommit)
			}
			if build.BuildDate != "" {
				fmt.Printf("Built:  %s\n", build.BuildDate)
			}
			if !check {
				return nil
			}

			latest, err := fetchLatestRelease(cmd.Context(), http.DefaultClient, latestReleaseURL)
			if err != nil {
				return fmt.Errorf("release check failed: %w", err)
			}

			newer, err := releaseIsNewer(a.Config.GetVersion(), latest.Tag)
			if err != nil {
				fmt.Println(err)
				return nil
			}
			if newer {
				color.Yellow("New version %s available: %s", latest.Tag, latest.URL)
			} else {
				color.Green("You already have the latest version.")
			}
			return nil
		},
	}

	versionCmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return versionCmd
}

type release struct {
	Tag string `json:"tag_name"`
	URL string `json:"html_url"`
}

func fetchLatestRelease(ctx context.Context, client *http.Client, url string) (*release, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github answered %d", resp.StatusCode)
	}

	var rel release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, err
	}
	if rel.Tag == "" {
		return nil, fmt.Errorf("release response had no tag")
	}
	return &rel, nil
}

// releaseIsNewer compares the running version against a release tag.
// Dev builds carry a non-semver version and are never reported as outdated.
func releaseIsNewer(current, tag string) (bool, error) {
	cur, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return false, fmt.Errorf("current version %q is not a release build, skipping comparison", current)
	}
	latest, err := semver.NewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return false, fmt.Errorf("could not parse release tag %q: %w", tag, err)
	}
	return latest.GreaterThan(cur), nil
}
