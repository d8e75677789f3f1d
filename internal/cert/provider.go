package cert

import (
	"sync"

	"github.com/botdock/botdock/pkg/logger"
)

// ChallengeProvider keeps HTTP-01 key authorizations in memory. lego calls
// Present and CleanUp around each order; the proxy's port 80 listener
// serves the lookups under /.well-known/acme-challenge/.
type ChallengeProvider struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewChallengeProvider() *ChallengeProvider {
	return &ChallengeProvider{tokens: make(map[string]string)}
}

// Present implements challenge.Provider.
func (p *ChallengeProvider) Present(domain, token, keyAuth string) error {
	p.mu.Lock()
	p.tokens[token] = keyAuth
	p.mu.Unlock()
	logger.Debug("ACME challenge presented", "domain", domain)
	return nil
}

// CleanUp implements challenge.Provider.
func (p *ChallengeProvider) CleanUp(domain, token, keyAuth string) error {
	p.mu.Lock()
	delete(p.tokens, token)
	p.mu.Unlock()
	logger.Debug("ACME challenge cleaned up", "domain", domain)
	return nil
}

// KeyAuth returns the key authorization for a presented token.
func (p *ChallengeProvider) KeyAuth(token string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keyAuth, ok := p.tokens[token]
	return keyAuth, ok
}
