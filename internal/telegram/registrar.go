package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/probe"
	"github.com/botdock/botdock/pkg/logger"
)

// RegistrationError marks a failed webhook registration. Deploys record it
// as a warning and keep going, the container is already running.
type RegistrationError struct {
	Bot   string
	Phase string
	Err   error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("webhook registration for %s failed during %s: %v", e.Bot, e.Phase, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Registrar registers webhooks for freshly deployed bots, gated behind a
// health probe so Telegram never gets pointed at a container that is still
// booting.
type Registrar struct {
	// NewClient builds the Bot API client for a token. Tests point it at
	// a local server.
	NewClient func(token string) *Client

	// HealthURL renders the bot's in-network health endpoint. Containers
	// are reachable by name on the shared network.
	HealthURL func(bot string) string

	prober   *probe.Prober
	attempts int
	interval time.Duration
}

// NewRegistrar wires a Registrar from config.
func NewRegistrar(conf *common.Config) *Registrar {
	apiBase := conf.Telegram.APIBase
	botPort := conf.ContainerEngine.BotPort

	return &Registrar{
		NewClient: func(token string) *Client {
			return NewClient(token, apiBase)
		},
		HealthURL: func(bot string) string {
			return fmt.Sprintf("http://%s:%d/health", bot, botPort)
		},
		prober:   probe.New(probe.WithTimeout(conf.Telegram.ProbeTimeoutDuration())),
		attempts: conf.Telegram.HealthAttempts,
		interval: conf.Telegram.HealthIntervalDuration(),
	}
}

// Register waits for the bot to answer its health endpoint, then registers
// its webhook with Telegram. secret may be empty. Any failure returns a
// *RegistrationError after logging the manual remediation; callers must not
// treat it as fatal.
func (r *Registrar) Register(ctx context.Context, bot, domain, token, secret string) error {
	healthURL := r.HealthURL(bot)
	webhookURL := fmt.Sprintf("https://%s/webhook/%s", domain, bot)

	logger.Info("Waiting for bot to become healthy", "bot", bot, "url", healthURL)
	if err := r.prober.WaitHealthy(ctx, healthURL, r.attempts, r.interval); err != nil {
		return r.fail(bot, domain, "health gate", err)
	}

	logger.Info("Registering webhook", "bot", bot, "url", webhookURL)
	client := r.NewClient(token)
	err := client.SetWebhook(ctx, SetWebhookRequest{
		URL:                webhookURL,
		SecretToken:        secret,
		DropPendingUpdates: true,
	})
	if err != nil {
		return r.fail(bot, domain, "setWebhook", err)
	}

	logger.Info("Webhook registered", "bot", bot, "url", webhookURL)
	return nil
}

// Deregister removes the bot's webhook, dropping any queued updates. Used
// when a bot is removed from the host.
func (r *Registrar) Deregister(ctx context.Context, bot, token string) error {
	client := r.NewClient(token)
	if err := client.DeleteWebhook(ctx, true); err != nil {
		return &RegistrationError{Bot: bot, Phase: "deleteWebhook", Err: err}
	}
	logger.Info("Webhook removed", "bot", bot)
	return nil
}

func (r *Registrar) fail(bot, domain, phase string, err error) error {
	logger.Warn("Webhook registration failed, bot is running but will not receive updates",
		"bot", bot,
		"phase", phase,
		"error", err,
		"fix", manualSetWebhook(bot, domain))
	return &RegistrationError{Bot: bot, Phase: phase, Err: err}
}

// manualSetWebhook renders the curl command an operator can run by hand.
// The token placeholder stays a placeholder, tokens do not belong in logs.
func manualSetWebhook(bot, domain string) string {
	return fmt.Sprintf(`curl -F "url=https://%s/webhook/%s" -F "drop_pending_updates=true" "https://api.telegram.org/bot<TOKEN>/setWebhook"`, domain, bot)
}
