// Package cert reconciles the public domain's TLS certificate between
// disk, the ACME directory and the in-memory store the listener serves
// from. States follow absent -> pending_issue -> valid and
// valid -> pending_renew -> valid, with failed terminal until an operator
// reruns the operation.
package cert

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/pkg/logger"
	"github.com/botdock/botdock/pkg/validation"
)

// Manager reconciles one domain's certificate. All operations serialize on
// an internal lock so concurrent Ensure and Renew cannot race an order.
type Manager struct {
	conf     *common.Config
	handle   *sql.DB
	store    *Store
	provider *ChallengeProvider

	mu     sync.Mutex
	client *lego.Client
}

func NewManager(conf *common.Config, handle *sql.DB, store *Store, provider *ChallengeProvider) *Manager {
	return &Manager{
		conf:     conf,
		handle:   handle,
		store:    store,
		provider: provider,
	}
}

// Ensure makes the domain serveable: loads a fresh-enough certificate from
// disk, or obtains one. Callers treat an error here as fatal on first
// deploy, the domain cannot serve webhooks without it.
func (m *Manager) Ensure(ctx context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	domain = validation.NormalizeDomain(domain)
	windowDays := m.conf.LetsEncrypt.RenewBeforeDuration().Hours() / 24

	info, err := m.diskStatus(domain)
	if err == nil && info.days > windowDays && m.kindAcceptable(info.kind) {
		return m.loadFromDisk(domain, info)
	}

	// Parseable files covering this domain count as renewal, not first
	// issuance, even when expired. Everything else starts from absent.
	next := StatePendingIssue
	if info != nil {
		next = StatePendingRenew
	}

	if !m.conf.LetsEncrypt.Enabled {
		return m.issueSelfSigned(domain, next)
	}

	m.setState(domain, next)
	if err := m.obtainAndInstall(ctx, domain); err != nil {
		m.setState(domain, StateFailed)
		return fmt.Errorf("certificate issuance for %s failed: %w", domain, err)
	}
	return nil
}

// Renew obtains a fresh certificate when the live one is inside the renew
// window. Outside the window it is a no-op, so it can run on a ticker.
// On failure the existing certificate keeps serving.
func (m *Manager) Renew(ctx context.Context, domain string) error {
	return m.renew(ctx, domain, false)
}

// ForceRenew obtains a fresh certificate regardless of remaining validity.
func (m *Manager) ForceRenew(ctx context.Context, domain string) error {
	return m.renew(ctx, domain, true)
}

func (m *Manager) renew(ctx context.Context, domain string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	domain = validation.NormalizeDomain(domain)
	windowDays := m.conf.LetsEncrypt.RenewBeforeDuration().Hours() / 24

	info, err := m.diskStatus(domain)
	if !force && err == nil && info.days > windowDays && m.kindAcceptable(info.kind) {
		logger.Debug("Certificate not due for renewal",
			"domain", domain,
			"expires_in_days", int(info.days))
		return nil
	}

	if !m.conf.LetsEncrypt.Enabled {
		return m.issueSelfSigned(domain, StatePendingRenew)
	}

	m.setState(domain, StatePendingRenew)
	if err := m.obtainAndInstall(ctx, domain); err != nil {
		m.setState(domain, StateFailed)
		logger.Warn("Certificate renewal failed, existing certificate keeps serving",
			"domain", domain,
			"error", err)
		return fmt.Errorf("certificate renewal for %s failed: %w", domain, err)
	}
	return nil
}

// diskStatus inspects the on-disk pair for the domain. A nil error means
// the pair parses, covers the domain, is inside its validity window and
// loads as a key pair.
func (m *Manager) diskStatus(domain string) (*certInfo, error) {
	certDir := m.conf.LetsEncrypt.CertDir

	chain, err := os.ReadFile(ChainPath(certDir, domain))
	if err != nil {
		return nil, err
	}

	info, err := inspect(chain, domain)
	if err != nil {
		return info, err
	}

	if _, err := tls.LoadX509KeyPair(ChainPath(certDir, domain), KeyPath(certDir, domain)); err != nil {
		return info, fmt.Errorf("certificate pair does not load: %w", err)
	}
	return info, nil
}

// kindAcceptable rejects serving self-signed certificates when ACME is
// enabled, and staging certificates under production config. A production
// certificate under staging config keeps serving.
func (m *Manager) kindAcceptable(kind string) bool {
	le := m.conf.LetsEncrypt
	if !le.Enabled {
		return true
	}
	if kind == "self-signed" {
		return false
	}
	if le.IsProduction() && kind == "staging" {
		return false
	}
	return true
}

func (m *Manager) loadFromDisk(domain string, info *certInfo) error {
	certDir := m.conf.LetsEncrypt.CertDir
	pair, err := tls.LoadX509KeyPair(ChainPath(certDir, domain), KeyPath(certDir, domain))
	if err != nil {
		return fmt.Errorf("failed to load certificate pair: %w", err)
	}

	m.store.Put(domain, &pair)
	m.record(domain, info.leaf)
	logger.Info("Certificate loaded from disk",
		"domain", domain,
		"issuer", info.issuer,
		"expires_in_days", int(info.days))
	return nil
}

func (m *Manager) issueSelfSigned(domain string, next State) error {
	m.setState(domain, next)
	logger.Info("LetsEncrypt disabled, issuing self-signed certificate", "domain", domain)

	chain, key, err := GenerateSelfSigned([]string{domain}, SelfSignedValidity)
	if err == nil {
		err = m.install(domain, chain, key)
	}
	if err != nil {
		m.setState(domain, StateFailed)
		return fmt.Errorf("self-signed issuance for %s failed: %w", domain, err)
	}
	return nil
}

func (m *Manager) obtainAndInstall(ctx context.Context, domain string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := m.acmeClient()
	if err != nil {
		return err
	}

	logger.Info("Requesting certificate", "domain", domain)

	// A fresh order instead of lego's Renew keeps the bundled chain
	// complete.
	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true,
	})
	if err != nil {
		return fmt.Errorf("ACME order failed: %w", err)
	}

	return m.install(domain, res.Certificate, res.PrivateKey)
}

func (m *Manager) install(domain string, chain, key []byte) error {
	if err := WritePair(m.conf.LetsEncrypt.CertDir, domain, chain, key); err != nil {
		return err
	}

	pair, err := tls.X509KeyPair(chain, key)
	if err != nil {
		return fmt.Errorf("obtained certificate does not load: %w", err)
	}
	m.store.Put(domain, &pair)

	leaf, err := certcrypto.ParsePEMCertificate(chain)
	if err != nil {
		return fmt.Errorf("failed to parse obtained certificate: %w", err)
	}
	m.record(domain, leaf)

	logger.Info("Certificate installed",
		"domain", domain,
		"issuer", leaf.Issuer.CommonName,
		"expires_at", leaf.NotAfter.Format(time.RFC3339))
	return nil
}

// acmeClient lazily builds the lego client. Nothing talks to the ACME
// directory while a fresh-enough certificate sits on disk.
func (m *Manager) acmeClient() (*lego.Client, error) {
	if m.client != nil {
		return m.client, nil
	}

	le := m.conf.LetsEncrypt
	if le.Email == "" {
		return nil, fmt.Errorf("letsencrypt email is not configured")
	}

	user, err := loadOrCreateUser(m.handle, le.Email)
	if err != nil {
		return nil, err
	}

	legoConf := lego.NewConfig(user)
	legoConf.Certificate.KeyType = certcrypto.RSA2048
	if le.IsProduction() {
		logger.Info("Using Let's Encrypt production directory")
		legoConf.CADirURL = lego.LEDirectoryProduction
	} else {
		logger.Info("Using Let's Encrypt staging directory")
		legoConf.CADirURL = lego.LEDirectoryStaging
	}

	client, err := lego.NewClient(legoConf)
	if err != nil {
		return nil, fmt.Errorf("failed to create ACME client: %w", err)
	}

	if err := client.Challenge.SetHTTP01Provider(m.provider); err != nil {
		return nil, fmt.Errorf("failed to set HTTP-01 provider: %w", err)
	}

	if user.GetRegistration() == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, fmt.Errorf("failed to register ACME account: %w", err)
		}
		user.registration = reg
		if err := saveUser(m.handle, user); err != nil {
			logger.Error("Failed to persist ACME registration", "email", user.email, "error", err)
		} else {
			logger.Info("ACME account registered", "email", user.email, "uri", reg.URI)
		}
	}

	m.client = client
	return client, nil
}

func (m *Manager) setState(domain string, state State) {
	if err := db.SetCertificateState(m.handle, domain, string(state)); err != nil {
		logger.Error("Failed to record certificate state",
			"domain", domain,
			"state", state,
			"error", err)
	}
}

// record marks the domain valid with the leaf's issuance window. Self
// signed certificates are recorded under the issuer name "self-signed".
func (m *Manager) record(domain string, leaf *x509.Certificate) {
	issuer := leaf.Issuer.CommonName
	if IssuerKind(leaf) == "self-signed" {
		issuer = "self-signed"
	}

	rec := &db.CertificateRecord{
		Domain:    domain,
		State:     string(StateValid),
		Issuer:    issuer,
		IssuedAt:  leaf.NotBefore.Format(time.RFC3339),
		ExpiresAt: leaf.NotAfter.Format(time.RFC3339),
	}
	if err := db.UpsertCertificate(m.handle, rec); err != nil {
		logger.Error("Failed to record certificate", "domain", domain, "error", err)
	}
}
