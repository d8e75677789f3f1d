package common

import (
	"fmt"
	"time"

	"github.com/botdock/botdock/pkg/bytesize"
	"github.com/botdock/botdock/pkg/duration"
)

type Config struct {
	General         GeneralConfig         `yaml:"General"`
	Proxy           ProxyConfig           `yaml:"Proxy"`
	LetsEncrypt     LetsEncryptConfig     `yaml:"LetsEncrypt"`
	Telegram        TelegramConfig        `yaml:"Telegram"`
	ContainerEngine ContainerEngineConfig `yaml:"ContainerEngine"`
	Admin           AdminConfig           `yaml:"Admin"`
	Build           BuildConfig           `yaml:"-"`
}

type GeneralConfig struct {
	StorageDir string `yaml:"storageDir"`
	LogLevel   string `yaml:"logLevel"`
}

type BuildConfig struct {
	RunEnv       string `yaml:"-"` // comes from env
	BuildVersion string `yaml:"-"` // comes from build ldflags
	BuildCommit  string `yaml:"-"` // comes from build ldflags
	BuildDate    string `yaml:"-"` // comes from build ldflags
}

type ProxyConfig struct {
	Domain      string  `yaml:"domain"`      // public FQDN all webhook URLs share
	HttpsPort   string  `yaml:"httpsPort"`   // TLS listener, default 443
	HttpPort    string  `yaml:"httpPort"`    // ACME + redirect listener, default 80
	RateLimit   float64 `yaml:"rateLimit"`   // webhook requests per second per source IP
	RateBurst   int     `yaml:"rateBurst"`   // bucket burst size
	RateExpiry  string  `yaml:"rateExpiry"`  // idle bucket eviction, duration literal
	MaxBodySize string  `yaml:"maxBodySize"` // webhook body cap, size literal
	GracePeriod int     `yaml:"gracePeriod"` // shutdown grace period in seconds
	EnableLogs  bool    `yaml:"enableLogs"`  // per-request logging on the proxy
}

type LetsEncryptConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Email       string `yaml:"email"`
	Mode        string `yaml:"mode"` // "staging" or "production"
	CertDir     string `yaml:"certDir"`
	AutoRenew   bool   `yaml:"autoRenew"`
	RenewBefore string `yaml:"renewBefore"` // renew when less than this remains, duration literal
}

type TelegramConfig struct {
	APIBase        string `yaml:"apiBase"`        // Bot API base URL, override for tests
	HealthAttempts int    `yaml:"healthAttempts"` // probes before giving up on a fresh container
	HealthInterval string `yaml:"healthInterval"` // pause between probes, duration literal
	ProbeTimeout   string `yaml:"probeTimeout"`   // per-probe timeout, duration literal
}

type ContainerEngineConfig struct {
	Sock       string `yaml:"dockersock"`
	PodmanSock string `yaml:"podmansock"`
	Podman     bool   `yaml:"podman"`
	Network    string `yaml:"network"`
	BotPort    int    `yaml:"botPort"` // port every bot container listens on
}

type AdminConfig struct {
	Secret string `yaml:"secret"` // HS256 key for the admin endpoints, generated on first run
}

// RenewBeforeDuration parses the renewal window, falling back to the default
// when the literal is absent or malformed.
func (c *LetsEncryptConfig) RenewBeforeDuration() time.Duration {
	d, err := duration.Parse(c.RenewBefore)
	if err != nil || d <= 0 {
		return 30 * duration.Day
	}
	return d
}

// IsProduction reports whether certificates come from the production
// directory. Unknown modes resolve to staging so a typo cannot burn
// production rate limits.
func (c *LetsEncryptConfig) IsProduction() bool {
	return c.Mode == "production"
}

func (c *ProxyConfig) RateExpiryDuration() time.Duration {
	d, err := duration.Parse(c.RateExpiry)
	if err != nil || d <= 0 {
		return 3 * time.Minute
	}
	return d
}

func (c *ProxyConfig) MaxBodyBytes() int64 {
	n, err := bytesize.Parse(c.MaxBodySize)
	if err != nil || n <= 0 {
		return 1 << 20
	}
	return n
}

func (c *ProxyConfig) GraceDuration() time.Duration {
	if c.GracePeriod <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.GracePeriod) * time.Second
}

// WebhookURL returns the public webhook URL for a bot.
func (c *ProxyConfig) WebhookURL(botName string) string {
	return fmt.Sprintf("https://%s/webhook/%s", c.Domain, botName)
}

func (c *TelegramConfig) HealthIntervalDuration() time.Duration {
	d, err := duration.Parse(c.HealthInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

func (c *TelegramConfig) ProbeTimeoutDuration() time.Duration {
	d, err := duration.Parse(c.ProbeTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// get storage dir
func (c *Config) GetStorageDir() string {
	return c.General.StorageDir
}

// GetVersion returns the running build version, "dev" for unversioned builds.
func (c *Config) GetVersion() string {
	if c.Build.BuildVersion == "" {
		return "dev"
	}
	return c.Build.BuildVersion
}

// GetRunEnv returns the run environment
func (c *BuildConfig) GetRunEnv() string {
	return c.RunEnv
}
