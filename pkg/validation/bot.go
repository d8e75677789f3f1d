// Package validation provides input validation for identifiers that end up
// in URLs, container names, and filesystem paths.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Bot identifiers double as container names and DNS aliases on the shared
// network, so the charset is the intersection of what Docker and URL paths
// accept: lowercase letters, digits, underscore, hyphen.
var botNameRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Domain labels per RFC 1035: alphanumeric with interior hyphens, at least
// two labels total.
var domainRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)

// Telegram accepts 1-256 chars of A-Z, a-z, 0-9, underscore and hyphen for
// a webhook secret token.
var secretTokenRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// MaxBotNameLength matches the DNS label limit, since the bot name becomes
// a network alias.
const MaxBotNameLength = 63

// ValidateBotName validates a bot identifier.
func ValidateBotName(name string) error {
	if name == "" {
		return fmt.Errorf("bot name cannot be empty")
	}

	if len(name) > MaxBotNameLength {
		return fmt.Errorf("bot name too long: %d chars (max %d)", len(name), MaxBotNameLength)
	}

	if !botNameRegex.MatchString(name) {
		return fmt.Errorf("invalid bot name %q: must contain only lowercase letters, digits, underscore and hyphen", name)
	}

	return nil
}

// ValidateDomain validates a fully qualified domain name. The input is
// expected in its normalized form (lowercase, no trailing dot).
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain cannot be empty")
	}

	if len(domain) > 253 {
		return fmt.Errorf("domain too long: %d chars (max 253)", len(domain))
	}

	if strings.ContainsAny(domain, " \t") {
		return fmt.Errorf("domain %q contains whitespace", domain)
	}

	if !domainRegex.MatchString(domain) {
		return fmt.Errorf("invalid domain %q", domain)
	}

	return nil
}

// ValidateSecretToken validates a webhook secret token against the
// constraints the Bot API enforces server-side.
func ValidateSecretToken(token string) error {
	if token == "" {
		return fmt.Errorf("secret token cannot be empty")
	}

	if !secretTokenRegex.MatchString(token) {
		return fmt.Errorf("invalid secret token: 1-256 chars of A-Z, a-z, 0-9, underscore and hyphen")
	}

	return nil
}

// NormalizeDomain lowercases a host and strips any trailing dot so lookups
// and comparisons are consistent.
func NormalizeDomain(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}
