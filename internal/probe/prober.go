// Package probe provides HTTP probing for bot health checks.
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout is the default timeout for a single probe.
const DefaultTimeout = 5 * time.Second

// Prober checks whether an endpoint answers HTTP.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// Option configures the Prober.
type Option func(*Prober)

// WithTimeout sets the per-probe timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Prober) {
		p.timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Prober) {
		p.client = client
	}
}

// New creates a new HTTP prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		p.client = &http.Client{
			Timeout: p.timeout,
			Transport: &http.Transport{
				// Probes only check reachability; bots behind the proxy
				// may present self-signed certificates in dev setups.
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
				},
				DisableKeepAlives: true,
			},
			// Don't follow redirects, the actual response matters.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return p
}

// Probe sends a GET request and returns the status code and elapsed
// milliseconds.
func (p *Prober) Probe(ctx context.Context, url string) (int, int64, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "botdock-healthcheck/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		return 0, elapsed, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Milliseconds()
	return resp.StatusCode, elapsed, nil
}

// WaitHealthy probes the URL until it answers 200, up to attempts tries
// spaced interval apart. Each probe runs under its own timeout so one hung
// connection cannot eat the whole budget.
func (p *Prober) WaitHealthy(ctx context.Context, url string, attempts int, interval time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		status, _, err := p.Probe(probeCtx, url)
		cancel()

		if err == nil && status == http.StatusOK {
			return nil
		}
		lastStatus, lastErr = status, err

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("health wait canceled: %w", ctx.Err())
		case <-time.After(interval):
		}
	}

	if lastErr != nil {
		return fmt.Errorf("endpoint never became healthy after %d attempts: %w", attempts, lastErr)
	}
	return fmt.Errorf("endpoint never became healthy after %d attempts (last status %d)", attempts, lastStatus)
}
