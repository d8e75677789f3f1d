package cert

import (
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
)

// Store holds the live certificates the TLS listener serves. A renewal is
// a swap under the lock, never a listener restart.
type Store struct {
	mu    sync.RWMutex
	certs map[string]*tls.Certificate
}

func NewStore() *Store {
	return &Store{certs: make(map[string]*tls.Certificate)}
}

// Put installs or replaces the certificate for a domain.
func (s *Store) Put(domain string, certificate *tls.Certificate) {
	s.mu.Lock()
	s.certs[normalizeHost(domain)] = certificate
	s.mu.Unlock()
}

// Get returns the certificate for a domain.
func (s *Store) Get(domain string) (*tls.Certificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	certificate, ok := s.certs[normalizeHost(domain)]
	return certificate, ok
}

// GetCertificate plugs into tls.Config. Clients without SNI get the single
// configured certificate when there is exactly one.
func (s *Store) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	name := normalizeHost(hello.ServerName)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if certificate, ok := s.certs[name]; ok {
		return certificate, nil
	}
	if len(s.certs) == 1 {
		for _, certificate := range s.certs {
			return certificate, nil
		}
	}
	return nil, fmt.Errorf("no certificate for %q", name)
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(host), ".")
}
