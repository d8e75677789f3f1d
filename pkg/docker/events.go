package docker

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
)

// containerEventCancel stops the event listener goroutine.
var containerEventCancel context.CancelFunc

// ContainerEventHandler receives lifecycle changes for managed containers.
// botName comes from the container's bot label.
type ContainerEventHandler struct {
	OnStart func(containerID, botName string)
	OnStop  func(containerID, botName string)
}

// ListenForContainerEvents watches the engine's event stream for managed
// containers on the given network and dispatches start/stop transitions to
// the handler. The stream reconnects with backoff when it drops.
func ListenForContainerEvents(networkFilter string, handler ContainerEventHandler) error {
	if err := CheckIfInitialized(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	containerEventCancel = cancel

	go func() {
		initialDelay := 1 * time.Second
		maxDelay := 1 * time.Minute
		currentDelay := initialDelay

		for {
			if ctx.Err() != nil {
				return
			}

			messages, errs := dockerCli.Events(ctx, events.ListOptions{
				Filters: makeEventFilters(networkFilter),
			})

			log.Info("Started container event listener", "network_filter", networkFilter)

			receiving := false
		eventStreamLoop:
			for {
				select {
				case err := <-errs:
					if ctx.Err() != nil {
						return
					}
					if err != nil {
						log.Error("Error in container event stream", "error", err)
						if receiving {
							currentDelay = initialDelay
						} else {
							currentDelay = time.Duration(float64(currentDelay) * 1.5)
							if currentDelay > maxDelay {
								currentDelay = maxDelay
							}
						}
						break eventStreamLoop
					}
				case event := <-messages:
					if !receiving {
						receiving = true
						currentDelay = initialDelay
					}

					if event.Type != events.ContainerEventType {
						continue
					}

					containerID := event.Actor.ID
					botName := event.Actor.Attributes[BotLabel]
					if botName == "" {
						botName = event.Actor.Attributes["name"]
					}

					switch event.Action {
					case events.ActionStart:
						log.Debug("Container started",
							"container_id", containerID,
							"bot", botName)
						if handler.OnStart != nil {
							handler.OnStart(containerID, botName)
						}
					case events.ActionDie, events.ActionKill, events.ActionDestroy:
						log.Debug("Container stopped",
							"container_id", containerID,
							"bot", botName,
							"action", event.Action)
						if handler.OnStop != nil {
							handler.OnStop(containerID, botName)
						}
					}
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-time.After(currentDelay):
				log.Info("Reconnecting to container event stream")
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// StopContainerEventListener stops the container event listener.
func StopContainerEventListener() {
	if containerEventCancel != nil {
		containerEventCancel()
		log.Info("Stopped container event listener")
	}
}

func makeEventFilters(networkName string) filters.Args {
	f := filters.NewArgs()
	f.Add("type", "container")
	f.Add("label", ManagedLabel+"=true")
	f.Add("event", "start")
	f.Add("event", "die")
	f.Add("event", "kill")
	f.Add("event", "destroy")

	if networkName != "" {
		f.Add("network", networkName)
	}

	return f
}
