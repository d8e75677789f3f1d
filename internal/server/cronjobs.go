package server

import (
	"context"
	"time"

	"github.com/botdock/botdock/internal/cert"
	"github.com/botdock/botdock/pkg/logger"
)

// renewCheckInterval is how often the renewal loop wakes up. Renew is a
// no-op while the certificate is outside its renewal window, so a daily
// check is plenty.
const renewCheckInterval = 24 * time.Hour

// renewTimeout bounds one renewal attempt, ACME order included.
const renewTimeout = 10 * time.Minute

// StartCertRenewal runs the periodic renewal check until ctx is cancelled.
// A failed attempt leaves the current certificate serving and is retried on
// the next tick.
func (a *App) StartCertRenewal(ctx context.Context, manager *cert.Manager) {
	domain := a.Config.Proxy.Domain

	go func() {
		ticker := time.NewTicker(renewCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				renewCtx, cancel := context.WithTimeout(ctx, renewTimeout)
				if err := manager.Renew(renewCtx, domain); err != nil {
					logger.Error("Scheduled certificate renewal failed",
						"domain", domain,
						"error", err)
				}
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("Certificate auto-renewal enabled", "domain", domain)
}
