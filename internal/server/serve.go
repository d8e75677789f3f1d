package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/botdock/botdock/internal/cert"
	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/internal/proxy"
	"github.com/botdock/botdock/pkg/docker"
	"github.com/botdock/botdock/pkg/kv"
	"github.com/botdock/botdock/pkg/logger"
)

// Jail tuning: this many rate-limit denials inside the window earn a
// sentence, during which the address is rejected outright.
const (
	jailThreshold = 10
	jailWindow    = 1 * time.Minute
	jailSentence  = 15 * time.Minute
)

// ensureTimeout bounds the initial certificate provisioning, which may
// involve a full ACME order.
const ensureTimeout = 5 * time.Minute

// StartServer wires the certificate manager, the abuse jail and the webhook
// proxy together, then serves until ctx is cancelled, a listener fails, or a
// termination signal arrives.
//
// The listeners come up before the first Ensure: HTTP-01 validation arrives
// on the HTTP listener's challenge route, so a first issuance cannot
// complete without it. Until Ensure installs a certificate the HTTPS
// listener answers handshakes with an error, which clears within seconds.
func StartServer(ctx context.Context, a *App) error {
	conf := a.GetConfig()

	if conf.Proxy.Domain == "" {
		return fmt.Errorf("no public domain configured, set proxy.domain in config.yml or BOTDOCK_DOMAIN")
	}

	if a.DB == nil {
		if err := InitializeDB(a); err != nil {
			return err
		}
	}

	// Engine connectivity is best-effort here. The proxy serves fine without
	// it; only the active flags on bot rows go stale.
	if err := common.DockerInit(&conf.ContainerEngine); err == nil {
		a.reconcileBotStates(ctx)
		a.startContainerWatch()
		defer docker.StopContainerEventListener()
	}

	store := cert.NewStore()
	challenges := cert.NewChallengeProvider()
	manager := cert.NewManager(conf, a.DB, store, challenges)

	jail, err := kv.OpenJail(filepath.Join(conf.General.StorageDir, "jail"),
		jailThreshold, jailWindow, jailSentence)
	if err != nil {
		logger.Warn("Abuse jail unavailable, repeat offenders will not be remembered",
			"error", err)
		jail = nil
	} else {
		defer jail.Close()
	}

	p, err := proxy.NewProxy(conf, proxy.Deps{
		Certs:      store,
		Challenges: challenges,
		Jail:       jail,
		CountBots:  func() (int, error) { return db.CountActiveBots(a.DB) },
		ListBots:   func() ([]db.Bot, error) { return db.ListBots(a.DB) },
	})
	if err != nil {
		return fmt.Errorf("failed to initialize proxy: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()

	proxyErr := make(chan error, 1)
	go func() { proxyErr <- p.Start(runCtx) }()

	// Give the listeners a moment to bind before ACME validation callbacks
	// can arrive.
	time.Sleep(1 * time.Second)

	ensureCtx, cancelEnsure := context.WithTimeout(runCtx, ensureTimeout)
	err = manager.Ensure(ensureCtx, conf.Proxy.Domain)
	cancelEnsure()
	if err != nil {
		cancel()
		<-proxyErr
		if shutdownErr := a.Shutdown(); shutdownErr != nil {
			logger.Error("Application shutdown error", "error", shutdownErr)
		}
		return fmt.Errorf("certificate provisioning failed: %w", err)
	}

	if conf.LetsEncrypt.AutoRenew {
		a.StartCertRenewal(runCtx, manager)
	}

	logger.Info("botdock is serving",
		"domain", conf.Proxy.Domain,
		"https_port", conf.Proxy.HttpsPort,
		"http_port", conf.Proxy.HttpPort,
		"version", conf.GetVersion())

	err = <-proxyErr

	if shutdownErr := a.Shutdown(); shutdownErr != nil {
		logger.Error("Application shutdown error", "error", shutdownErr)
	}
	return err
}
