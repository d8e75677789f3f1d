package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/botdock/botdock/pkg/logger"
)

// Start runs both listeners until ctx is cancelled or one of them fails.
func (p *Proxy) Start(ctx context.Context) error {
	httpsAddr := ":" + p.conf.Proxy.HttpsPort
	httpAddr := ":" + p.conf.Proxy.HttpPort

	p.httpsListener = &http.Server{
		Addr:    httpsAddr,
		Handler: p.httpsServer,
		TLSConfig: &tls.Config{
			GetCertificate: p.certs.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		},
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	p.httpListener = &http.Server{
		Addr:         httpAddr,
		Handler:      p.httpServer,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	p.started = true

	errChan := make(chan error, 2)
	go func() {
		logger.Info("Starting HTTPS webhook listener", "addr", httpsAddr)
		if err := p.httpsListener.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("https listener: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting HTTP listener for ACME challenges and redirects", "addr", httpAddr)
		if err := p.httpListener.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http listener: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return p.Stop()
	}
}

// Stop shuts both listeners down, waiting up to the grace period for in-flight
// requests to finish.
func (p *Proxy) Stop() error {
	if !p.started {
		return nil
	}
	p.started = false

	ctx, cancel := context.WithTimeout(context.Background(), p.conf.Proxy.GraceDuration())
	defer cancel()

	logger.Info("Stopping webhook listeners")

	var errs []error
	if err := p.httpsListener.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("https listener: %w", err))
	}
	if err := p.httpListener.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http listener: %w", err))
	}
	return errors.Join(errs...)
}
