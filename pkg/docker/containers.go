package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
)

// ManagedLabel marks containers created by botdock so listings and event
// handling ignore everything else on the host.
const ManagedLabel = "botdock.managed"

// BotLabel carries the bot identifier on the container.
const BotLabel = "botdock.bot"

// BotContainerParams describes the container a bot runs in. The container
// joins the shared network under an alias equal to the bot name, which is
// what the proxy dials.
type BotContainerParams struct {
	Name        string
	Image       string
	Network     string
	Port        int // port the bot process listens on inside the container
	Environment []string
	Labels      map[string]string
}

// ListManagedContainers returns every container carrying the managed label,
// running or not.
func ListManagedContainers(ctx context.Context) ([]types.Container, error) {
	if err := CheckIfInitialized(); err != nil {
		return nil, err
	}

	f := filters.NewArgs()
	f.Add("label", ManagedLabel+"=true")

	containers, err := dockerCli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("error listing containers: %w", err)
	}
	return containers, nil
}

// FindContainerByName returns the container with the given name, or nil when
// no such container exists.
func FindContainerByName(ctx context.Context, name string) (*types.Container, error) {
	if err := CheckIfInitialized(); err != nil {
		return nil, err
	}

	f := filters.NewArgs()
	f.Add("name", name)

	containers, err := dockerCli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("error listing containers: %w", err)
	}

	// The name filter matches substrings, so compare exactly.
	for i, c := range containers {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				return &containers[i], nil
			}
		}
	}
	return nil, nil
}

// StopContainer tries to stop a container gracefully, then forcefully.
func StopContainer(ctx context.Context, containerID string) error {
	stopped, err := StopContainerGracefully(ctx, containerID, 10*time.Second)
	if err != nil {
		log.Warn("Failed to stop container gracefully", "error", err)
	}

	if !stopped {
		if err := dockerCli.ContainerKill(ctx, containerID, "SIGKILL"); err != nil {
			return fmt.Errorf("failed to stop container forcefully: %w", err)
		}
		log.Info("Container stopped forcefully", "containerID", containerID)
	} else {
		log.Debug("Container stopped gracefully", "containerID", containerID)
	}

	return nil
}

// StopContainerGracefully sends SIGTERM through ContainerStop and waits up to
// the timeout for the container to exit.
func StopContainerGracefully(ctx context.Context, containerID string, timeout time.Duration) (bool, error) {
	seconds := int(timeout.Seconds())
	if err := dockerCli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		return false, err
	}

	info, err := dockerCli.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, err
	}
	return !info.State.Running, nil
}

// RemoveContainer force-removes a container.
func RemoveContainer(ctx context.Context, containerID string) error {
	return dockerCli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// StartContainer starts a container and waits for it to reach the running
// state.
func StartContainer(ctx context.Context, containerID string) error {
	info, err := GetContainerInfo(ctx, containerID)
	if err != nil {
		return fmt.Errorf("could not get container info: %w", err)
	}
	if info.State.Running {
		return nil
	}

	if err := dockerCli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		if logs, logErr := GetContainerLogs(ctx, containerID); logErr == nil && logs != "" {
			log.Error("Container failed to start", "logs", tail(logs, 20))
		}
		return fmt.Errorf("could not start container: %w", err)
	}

	return WaitForContainerRunning(ctx, containerID, 30*time.Second)
}

// CreateBotContainer creates (but does not start) a bot container. The
// caller is expected to have removed any previous container with this name.
func CreateBotContainer(ctx context.Context, params BotContainerParams) (string, error) {
	if err := CheckIfInitialized(); err != nil {
		return "", fmt.Errorf("failed to check if docker client is initialized: %w", err)
	}

	log.Info("Creating container",
		"name", params.Name,
		"image", params.Image,
		"network", params.Network)

	exposedPort := nat.Port(fmt.Sprintf("%d/tcp", params.Port))

	labels := map[string]string{
		ManagedLabel: "true",
		BotLabel:     params.Name,
	}
	for k, v := range params.Labels {
		labels[k] = v
	}

	resp, err := dockerCli.ContainerCreate(
		ctx,
		&container.Config{
			Image:        params.Image,
			Hostname:     params.Name,
			Env:          params.Environment,
			Labels:       labels,
			ExposedPorts: nat.PortSet{exposedPort: struct{}{}},
		},
		&container.HostConfig{
			RestartPolicy: container.RestartPolicy{
				Name: container.RestartPolicyUnlessStopped,
			},
		},
		&network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				params.Network: {
					Aliases: []string{params.Name},
				},
			},
		},
		nil,
		params.Name,
	)
	if err != nil {
		return "", fmt.Errorf("container creation failed: %w", err)
	}

	log.Debug("Container created", "id", resp.ID)
	return resp.ID, nil
}

// WaitForContainerRunning polls until the container reports running, or
// fails fast when it exits.
func WaitForContainerRunning(ctx context.Context, containerID string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for container to start")
		case <-time.After(time.Second):
			state, err := GetContainerState(ctx, containerID)
			if err != nil {
				return fmt.Errorf("error checking container state: %w", err)
			}

			if state == "running" {
				return nil
			}

			if state == "exited" || state == "dead" {
				logs, _ := GetContainerLogs(ctx, containerID)
				return fmt.Errorf("container exited unexpectedly. Logs: %s", tail(logs, 20))
			}
		}
	}
}

// GetContainerInfo returns the full inspect payload for a container.
func GetContainerInfo(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	info, err := dockerCli.ContainerInspect(ctx, containerID)
	if err != nil {
		return types.ContainerJSON{}, err
	}
	return info, nil
}

func GetContainerState(ctx context.Context, containerID string) (string, error) {
	info, err := dockerCli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", err
	}
	return info.State.Status, nil
}

// GetContainerLogs returns the combined stdout/stderr of a container.
func GetContainerLogs(ctx context.Context, containerID string) (string, error) {
	containerLogs, err := dockerCli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer containerLogs.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(containerLogs); err != nil {
		return "", fmt.Errorf("failed to read container logs: %w", err)
	}

	return buf.String(), nil
}

// GetContainerUptime returns a humanized uptime for a running container.
func GetContainerUptime(ctx context.Context, containerID string) (string, error) {
	info, err := GetContainerInfo(ctx, containerID)
	if err != nil {
		return "", err
	}

	if !info.State.Running {
		return "not running", nil
	}

	startTime, err := time.Parse(time.RFC3339, info.State.StartedAt)
	if err != nil {
		return "", err
	}

	return FormatDuration(time.Since(startTime)), nil
}

// FormatDuration renders a duration as "2d 3h 4m" for listings.
func FormatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// tail returns the last n lines of a log dump.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
