package cert

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/botdock/botdock/pkg/validation"
)

const (
	// ChainFilename and KeyFilename are the on-disk names under
	// <certdir>/<domain>/.
	ChainFilename = "fullchain.pem"
	KeyFilename   = "privkey.pem"
)

var (
	ErrDomainMismatch = errors.New("certificate does not cover domain")
	ErrExpired        = errors.New("certificate expired")
)

// Dir returns the directory holding the pair for one domain.
func Dir(certDir, domain string) string {
	return filepath.Join(certDir, domain)
}

func ChainPath(certDir, domain string) string {
	return filepath.Join(certDir, domain, ChainFilename)
}

func KeyPath(certDir, domain string) string {
	return filepath.Join(certDir, domain, KeyFilename)
}

// writeFileAtomic writes through a dot-temp sibling, fsyncs and renames.
// A crashed writer never leaves a half-written file under the final name.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// WritePair persists a chain and key for a domain. The key goes first so a
// crash between the two writes leaves a mismatched pair, which loads as
// invalid and triggers reissue, rather than a chain without its key.
func WritePair(certDir, domain string, chain, key []byte) error {
	dir := Dir(certDir, domain)
	if err := validation.ValidatePathWithinRoot(certDir, dir); err != nil {
		return fmt.Errorf("unsafe certificate directory for %q: %w", domain, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, KeyFilename), key, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, ChainFilename), chain, 0o644); err != nil {
		return fmt.Errorf("failed to write certificate chain: %w", err)
	}
	return nil
}

// certInfo is the parsed view of an on-disk chain.
type certInfo struct {
	leaf   *x509.Certificate
	chain  int
	days   float64
	issuer string
	kind   string
}

// inspect parses a PEM chain and checks it is usable for the domain right
// now. Expiry is reported as ErrExpired, a SAN miss as ErrDomainMismatch.
func inspect(data []byte, domain string) (*certInfo, error) {
	leaf, chainLen, err := parseLeaf(data)
	if err != nil {
		return nil, err
	}

	if !matchesDomain(leaf, domain) {
		return nil, fmt.Errorf("%w: %s (cert covers %v)", ErrDomainMismatch, domain, leaf.DNSNames)
	}

	info := &certInfo{
		leaf:   leaf,
		chain:  chainLen,
		issuer: leaf.Issuer.CommonName,
		kind:   IssuerKind(leaf),
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) {
		return info, fmt.Errorf("certificate not valid before %s", leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		return info, fmt.Errorf("%w: not after %s", ErrExpired, leaf.NotAfter.Format(time.RFC3339))
	}

	info.days = leaf.NotAfter.Sub(now).Hours() / 24
	return info, nil
}

// ValidateCertFile checks that PEM data holds a usable chain for the
// domain. Returns the remaining validity in days and the issuer.
func ValidateCertFile(data []byte, domain string) (float64, string, error) {
	info, err := inspect(data, domain)
	if err != nil {
		return 0, "", err
	}
	return info.days, info.issuer, nil
}

// parseLeaf decodes the first CERTIFICATE block and counts the rest of the
// chain behind it.
func parseLeaf(data []byte) (*x509.Certificate, int, error) {
	block, rest := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, 0, fmt.Errorf("no PEM CERTIFICATE block found")
	}

	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse certificate: %w", err)
	}

	chainLen := 0
	for len(rest) > 0 {
		var next *pem.Block
		next, rest = pem.Decode(rest)
		if next == nil {
			break
		}
		if next.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(next.Bytes); err != nil {
			return nil, 0, fmt.Errorf("failed to parse chain certificate: %w", err)
		}
		chainLen++
	}

	return leaf, chainLen, nil
}

func matchesDomain(leaf *x509.Certificate, domain string) bool {
	for _, name := range leaf.DNSNames {
		if name == domain {
			return true
		}
	}
	return leaf.Subject.CommonName == domain
}

// IssuerKind classifies a certificate by its issuer common name.
func IssuerKind(leaf *x509.Certificate) string {
	if leaf.Issuer.CommonName == leaf.Subject.CommonName {
		return "self-signed"
	}

	issuer := leaf.Issuer.CommonName
	switch {
	case strings.Contains(issuer, "STAGING"),
		strings.Contains(issuer, "Fake LE"),
		strings.Contains(issuer, "Counterfeit"),
		strings.Contains(issuer, "False Fennel"):
		return "staging"
	case strings.Contains(issuer, "Let's Encrypt"),
		strings.Contains(issuer, "R3"),
		strings.Contains(issuer, "E1"):
		return "production"
	}
	return "unknown"
}
