package docker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

type Config struct {
	Sock string
}

var (
	dockerCli     *client.Client
	currentConfig *Config
)

func InitializeClient(config *Config) error {
	if config.Sock == "" {
		return fmt.Errorf("sock field in Config is empty")
	}

	if _, err := os.Stat(config.Sock); os.IsNotExist(err) {
		return err
	}

	host := "unix://" + config.Sock

	cli, err := client.NewClientWithOpts(
		client.WithAPIVersionNegotiation(),
		client.WithHost(host),
	)
	if err != nil {
		return fmt.Errorf("error initializing Docker client: %w", err)
	}

	log.Debug("Docker client initialized", "socket", config.Sock)
	dockerCli = cli
	currentConfig = config
	return nil
}

func CheckIfInitialized() error {
	if currentConfig == nil || currentConfig.Sock == "" {
		return fmt.Errorf("docker client is not initialized or configuration is missing")
	}

	if _, err := os.Stat(currentConfig.Sock); os.IsNotExist(err) {
		return fmt.Errorf("sock file does not exist: %s", currentConfig.Sock)
	}

	if dockerCli == nil {
		return fmt.Errorf("docker client is not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := dockerCli.ContainerList(ctx, container.ListOptions{}); err != nil {
		return fmt.Errorf("cannot connect to Docker daemon: %w", err)
	}

	return nil
}
