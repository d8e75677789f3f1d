package docker

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types/network"
)

// CheckIfNetworkExists reports whether a network with this name exists.
func CheckIfNetworkExists(ctx context.Context, networkName string) (bool, error) {
	networks, err := dockerCli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return false, err
	}

	for _, n := range networks {
		if n.Name == networkName {
			return true, nil
		}
	}
	return false, nil
}

// EnsureNetwork creates the shared bot network if it does not exist yet.
// Returns true when the network was created by this call.
func EnsureNetwork(ctx context.Context, networkName string) (bool, error) {
	if err := CheckIfInitialized(); err != nil {
		return false, err
	}

	exists, err := CheckIfNetworkExists(ctx, networkName)
	if err != nil {
		return false, fmt.Errorf("network check failed: %w", err)
	}
	if exists {
		return false, nil
	}

	log.Info("Creating network", "name", networkName)
	if _, err := dockerCli.NetworkCreate(ctx, networkName, network.CreateOptions{
		Labels: map[string]string{ManagedLabel: "true"},
	}); err != nil {
		return false, fmt.Errorf("network creation failed: %w", err)
	}
	return true, nil
}

// GetNetworkInfo returns the inspect payload for a network.
func GetNetworkInfo(ctx context.Context, networkName string) (*network.Inspect, error) {
	info, err := dockerCli.NetworkInspect(ctx, networkName, network.InspectOptions{})
	if err != nil {
		return nil, err
	}
	return &info, nil
}
