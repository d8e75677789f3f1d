package deploy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/botdock/botdock/internal/cert"
	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/internal/probe"
	"github.com/botdock/botdock/internal/telegram"
	"github.com/botdock/botdock/pkg/docker"
	"github.com/botdock/botdock/pkg/logger"
	"github.com/botdock/botdock/pkg/tarball"
)

// stopTimeout bounds the graceful stop of the previous container before it
// is removed.
const stopTimeout = 30 * time.Second

// ensureNetworkStep makes sure the shared bot network exists. Containers
// are dialed by name, which only works on a user-defined network.
type ensureNetworkStep struct {
	network string
}

func (s *ensureNetworkStep) Name() string { return "ensure-network" }

func (s *ensureNetworkStep) Plan(st *State) string {
	return fmt.Sprintf("create container network %q if it does not exist", s.network)
}

func (s *ensureNetworkStep) Run(ctx context.Context, st *State) error {
	created, err := docker.EnsureNetwork(ctx, s.network)
	if err != nil {
		return fmt.Errorf("could not ensure network %s: %w", s.network, err)
	}
	if created {
		logger.Info("Created container network", "network", s.network)
	}
	return nil
}

// resolveImageStep builds or pulls the bot image and pins its ID so later
// steps and rollback work against an immutable reference.
type resolveImageStep struct{}

func (s *resolveImageStep) Name() string { return "resolve-image" }

func (s *resolveImageStep) Plan(st *State) string {
	if st.BuildDir != "" {
		return fmt.Sprintf("build image %q from %s", st.Image, st.BuildDir)
	}
	return fmt.Sprintf("pull image %q", st.Image)
}

func (s *resolveImageStep) Run(ctx context.Context, st *State) error {
	if st.BuildDir != "" {
		buildCtx, err := tarball.Pack(st.BuildDir)
		if err != nil {
			return err
		}
		defer buildCtx.Close()

		if err := docker.BuildImage(ctx, buildCtx, st.Image); err != nil {
			return fmt.Errorf("image build failed: %w", err)
		}
		logger.Info("Built image", "image", st.Image, "dir", st.BuildDir)
	} else {
		if err := docker.PullImage(ctx, st.Image); err != nil {
			if !docker.ImageExists(ctx, st.Image) {
				return fmt.Errorf("image pull failed: %w", err)
			}
			logger.Warn("Pull failed, using local image", "image", st.Image, "error", err)
		}
	}

	id, err := docker.GetImageIDByName(ctx, st.Image)
	if err != nil {
		return fmt.Errorf("could not resolve image ID for %s: %w", st.Image, err)
	}
	st.ImageID = id
	logger.Debug("Resolved image", "image", st.Image, "id", id)
	return nil
}

// recreateContainerStep replaces the bot's container with a fresh one from
// the resolved image. The old container's image ID is pinned first so
// rollback can recreate it even when the tag moved.
type recreateContainerStep struct {
	conf *common.Config
}

func (s *recreateContainerStep) Name() string { return "recreate-container" }

func (s *recreateContainerStep) Plan(st *State) string {
	return fmt.Sprintf("replace container %q with one running %s", st.Bot, st.Image)
}

func (s *recreateContainerStep) Run(ctx context.Context, st *State) error {
	existing, err := docker.FindContainerByName(ctx, st.Bot)
	if err != nil {
		return fmt.Errorf("could not look up container %s: %w", st.Bot, err)
	}

	if existing != nil {
		st.PrevContainer = existing.ID
		st.PrevImage = existing.ImageID

		if _, err := docker.StopContainerGracefully(ctx, existing.ID, stopTimeout); err != nil {
			return fmt.Errorf("could not stop previous container: %w", err)
		}
		if err := docker.RemoveContainer(ctx, existing.ID); err != nil {
			return fmt.Errorf("could not remove previous container: %w", err)
		}
		st.Replaced = true
		logger.Debug("Removed previous container", "bot", st.Bot, "id", existing.ID)
	}

	image := st.ImageID
	if image == "" {
		image = st.Image
	}

	id, err := docker.CreateBotContainer(ctx, docker.BotContainerParams{
		Name:        st.Bot,
		Image:       image,
		Network:     s.conf.ContainerEngine.Network,
		Port:        s.conf.ContainerEngine.BotPort,
		Environment: containerEnv(s.conf, st),
	})
	if err != nil {
		return fmt.Errorf("could not create container: %w", err)
	}
	st.NewContainer = id

	if err := docker.StartContainer(ctx, id); err != nil {
		return fmt.Errorf("could not start container: %w", err)
	}
	return nil
}

// containerEnv assembles the container environment. Keys owned by the
// daemon go last so they win over anything in the bot's env file.
func containerEnv(conf *common.Config, st *State) []string {
	env := make([]string, 0, len(st.Env)+5)
	env = append(env, st.Env...)
	env = append(env,
		"BOT_NAME="+st.Bot,
		fmt.Sprintf("BOT_PORT=%d", conf.ContainerEngine.BotPort),
		"BOT_TOKEN="+st.Token,
		"WEBHOOK_URL="+conf.Proxy.WebhookURL(st.Bot),
	)
	if st.Secret != "" {
		env = append(env, "BOT_SECRET_TOKEN="+st.Secret)
	}
	return env
}

// waitHealthyStep blocks until the new container answers its health
// endpoint. The bot is dialed by name on the shared network, the same way
// the proxy reaches it.
type waitHealthyStep struct {
	prober   *probe.Prober
	urlFor   func(bot string) string
	attempts int
	interval time.Duration
}

func newWaitHealthyStep(conf *common.Config) *waitHealthyStep {
	botPort := conf.ContainerEngine.BotPort
	return &waitHealthyStep{
		prober: probe.New(probe.WithTimeout(conf.Telegram.ProbeTimeoutDuration())),
		urlFor: func(bot string) string {
			return fmt.Sprintf("http://%s:%d/health", bot, botPort)
		},
		attempts: conf.Telegram.HealthAttempts,
		interval: conf.Telegram.HealthIntervalDuration(),
	}
}

func (s *waitHealthyStep) Name() string { return "wait-healthy" }

func (s *waitHealthyStep) Plan(st *State) string {
	return fmt.Sprintf("wait for %s to answer 200", s.urlFor(st.Bot))
}

func (s *waitHealthyStep) Run(ctx context.Context, st *State) error {
	return s.prober.WaitHealthy(ctx, s.urlFor(st.Bot), s.attempts, s.interval)
}

// ensureCertStep provisions the host certificate on a bot's first deploy.
// Later deploys skip it, renewal is the serve daemon's job.
type ensureCertStep struct {
	handle  *sql.DB
	manager *cert.Manager
	domain  string
}

func (s *ensureCertStep) Name() string { return "ensure-certificate" }

func (s *ensureCertStep) Plan(st *State) string {
	if !st.FirstDeploy {
		return "skip, not a first deploy"
	}
	return fmt.Sprintf("ensure a certificate for %s exists", s.domain)
}

func (s *ensureCertStep) Run(ctx context.Context, st *State) error {
	if !st.FirstDeploy {
		return skipStep("not a first deploy")
	}

	rec, err := db.GetCertificate(s.handle, s.domain)
	if err == nil && rec.State == string(cert.StateValid) {
		return skipStep("certificate already valid")
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("could not read certificate state: %w", err)
	}

	return s.manager.Ensure(ctx, s.domain)
}

// registerWebhookStep points Telegram at the bot's public webhook URL.
// Registration failures are warnings, the container is already serving and
// the operator gets a manual curl in the log.
type registerWebhookStep struct {
	registrar *telegram.Registrar
}

func (s *registerWebhookStep) Name() string { return "register-webhook" }

func (s *registerWebhookStep) Plan(st *State) string {
	if st.SkipRegister {
		return "skip, registration disabled"
	}
	return fmt.Sprintf("register https://%s/webhook/%s with Telegram", st.Domain, st.Bot)
}

func (s *registerWebhookStep) Run(ctx context.Context, st *State) error {
	if st.SkipRegister {
		return skipStep("registration disabled")
	}
	if err := s.registrar.Register(ctx, st.Bot, st.Domain, st.Token, st.Secret); err != nil {
		return warnStep(err)
	}
	return nil
}
