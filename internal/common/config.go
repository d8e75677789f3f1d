package common

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/botdock/botdock/pkg/docker"
	"github.com/botdock/botdock/pkg/logger"
	"github.com/botdock/botdock/pkg/validation"
)

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

func init() {
	logger.GetLogger().ConfigureFromEnv()
}

// Default values
var (
	defaultSock        = "/var/run/docker.sock"
	defaultPodmanSock  = "/run/podman/podman.sock"
	defaultHttpsPort   = "443"
	defaultHttpPort    = "80"
	defaultCertDir     = "/var/lib/botdock/certs"
	defaultMode        = "staging"
	defaultRenewBefore = "30d"
	defaultRateLimit   = 10.0
	defaultRateBurst   = 30
	defaultRateExpiry  = "3m"
	defaultMaxBody     = "1MB"
	defaultGracePeriod = 30 // seconds
	defaultAPIBase     = "https://api.telegram.org"
	defaultAttempts    = 30
	defaultInterval    = "2s"
	defaultProbeTO     = "5s"
	defaultNetwork     = "botdock"
	defaultBotPort     = 8080
	defaultLogLevel    = "info"
)

// GetGlobalConfig returns the singleton config instance, loading it if necessary.
func GetGlobalConfig(buildConfig *BuildConfig) (*Config, error) {
	globalConfigMu.RLock()
	if globalConfig != nil {
		if buildConfig != nil {
			globalConfig.Build = *buildConfig
		}
		config := globalConfig
		globalConfigMu.RUnlock()
		return config, nil
	}
	globalConfigMu.RUnlock()

	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()

	// Another goroutine may have loaded it while we waited for the lock.
	if globalConfig != nil {
		if buildConfig != nil {
			globalConfig.Build = *buildConfig
		}
		return globalConfig, nil
	}

	config := &Config{}
	if buildConfig != nil {
		config.Build = *buildConfig
	}

	var err error
	globalConfigOnce.Do(func() {
		var loaded *Config
		loaded, err = config.LoadConfig()
		if err == nil {
			globalConfig = loaded
		} else {
			logger.Error("Error loading global configuration", "error", err)
		}
	})

	if globalConfig != nil {
		return globalConfig, err
	}
	return config, err
}

// getConfigDir resolves the directory holding config.yml:
// BOTDOCK_CONFIG_DIR if set, the working directory when running inside a
// container with a mounted config, otherwise os.UserConfigDir()/botdock.
func getConfigDir() (string, error) {
	if dir := os.Getenv("BOTDOCK_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	if docker.IsRunningInContainer() {
		return ".", nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("could not determine config directory: %w", err)
		}
		return filepath.Join(homeDir, ".botdock"), nil
	}

	return filepath.Join(base, "botdock"), nil
}

// applyDefaults fills zero-valued fields. Returns true if anything changed so
// the caller knows to persist the completed config.
func applyDefaults(config *Config) bool {
	changed := false

	set := func(field *string, value string) {
		if *field == "" {
			*field = value
			changed = true
		}
	}

	set(&config.General.LogLevel, defaultLogLevel)
	if config.General.StorageDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/var/lib"
		}
		config.General.StorageDir = filepath.Join(homeDir, ".botdock")
		changed = true
	}

	set(&config.Proxy.HttpsPort, defaultHttpsPort)
	set(&config.Proxy.HttpPort, defaultHttpPort)
	set(&config.Proxy.RateExpiry, defaultRateExpiry)
	set(&config.Proxy.MaxBodySize, defaultMaxBody)
	if config.Proxy.RateLimit == 0 {
		config.Proxy.RateLimit = defaultRateLimit
		changed = true
	}
	if config.Proxy.RateBurst == 0 {
		config.Proxy.RateBurst = defaultRateBurst
		changed = true
	}
	if config.Proxy.GracePeriod == 0 {
		config.Proxy.GracePeriod = defaultGracePeriod
		changed = true
	}

	set(&config.LetsEncrypt.CertDir, defaultCertDir)
	set(&config.LetsEncrypt.Mode, defaultMode)
	set(&config.LetsEncrypt.RenewBefore, defaultRenewBefore)

	set(&config.Telegram.APIBase, defaultAPIBase)
	set(&config.Telegram.HealthInterval, defaultInterval)
	set(&config.Telegram.ProbeTimeout, defaultProbeTO)
	if config.Telegram.HealthAttempts == 0 {
		config.Telegram.HealthAttempts = defaultAttempts
		changed = true
	}

	set(&config.ContainerEngine.Sock, defaultSock)
	set(&config.ContainerEngine.PodmanSock, defaultPodmanSock)
	set(&config.ContainerEngine.Network, defaultNetwork)
	if config.ContainerEngine.BotPort == 0 {
		config.ContainerEngine.BotPort = defaultBotPort
		changed = true
	}

	if config.Admin.Secret == "" {
		config.Admin.Secret = generateSecret()
		changed = true
	}

	return changed
}

// generateSecret returns a random 32-byte hex key for the admin JWT.
func generateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		logger.Fatal("Failed to generate admin secret", "error", err)
	}
	return hex.EncodeToString(buf)
}

// loadConfigFromEnv overrides config fields from BOTDOCK_* environment
// variables. Env always wins over the file.
func loadConfigFromEnv(config *Config) {
	setStr := func(key string, field *string) {
		if val := os.Getenv(key); val != "" {
			*field = val
			logger.Debug("Using environment variable", "name", key)
		}
	}
	setBool := func(key string, field *bool) {
		if val := os.Getenv(key); val != "" {
			b, err := strconv.ParseBool(strings.ToLower(val))
			if err == nil {
				*field = b
				logger.Debug("Using environment variable", "name", key)
			}
		}
	}
	setInt := func(key string, field *int) {
		if val := os.Getenv(key); val != "" {
			if i, err := strconv.Atoi(val); err == nil {
				*field = i
				logger.Debug("Using environment variable", "name", key)
			}
		}
	}

	setStr("BOTDOCK_STORAGE_DIR", &config.General.StorageDir)
	setStr("BOTDOCK_LOG_LEVEL", &config.General.LogLevel)

	setStr("BOTDOCK_DOMAIN", &config.Proxy.Domain)
	setStr("BOTDOCK_HTTPS_PORT", &config.Proxy.HttpsPort)
	setStr("BOTDOCK_HTTP_PORT", &config.Proxy.HttpPort)
	setInt("BOTDOCK_RATE_BURST", &config.Proxy.RateBurst)
	setInt("BOTDOCK_GRACE_PERIOD", &config.Proxy.GracePeriod)
	setBool("BOTDOCK_PROXY_LOGS", &config.Proxy.EnableLogs)
	if val := os.Getenv("BOTDOCK_RATE_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			config.Proxy.RateLimit = f
			logger.Debug("Using environment variable", "name", "BOTDOCK_RATE_LIMIT")
		}
	}

	setBool("BOTDOCK_LETSENCRYPT_ENABLED", &config.LetsEncrypt.Enabled)
	setStr("BOTDOCK_LETSENCRYPT_EMAIL", &config.LetsEncrypt.Email)
	setStr("BOTDOCK_LETSENCRYPT_MODE", &config.LetsEncrypt.Mode)
	setStr("BOTDOCK_CERT_DIR", &config.LetsEncrypt.CertDir)
	setBool("BOTDOCK_AUTO_RENEW", &config.LetsEncrypt.AutoRenew)
	setStr("BOTDOCK_RENEW_BEFORE", &config.LetsEncrypt.RenewBefore)

	setStr("BOTDOCK_TELEGRAM_API_BASE", &config.Telegram.APIBase)
	setInt("BOTDOCK_HEALTH_ATTEMPTS", &config.Telegram.HealthAttempts)
	setStr("BOTDOCK_HEALTH_INTERVAL", &config.Telegram.HealthInterval)

	setStr("BOTDOCK_CONTAINER_SOCK", &config.ContainerEngine.Sock)
	setBool("BOTDOCK_CONTAINER_PODMAN", &config.ContainerEngine.Podman)
	setStr("BOTDOCK_CONTAINER_NETWORK", &config.ContainerEngine.Network)
	setInt("BOTDOCK_BOT_PORT", &config.ContainerEngine.BotPort)

	setStr("BOTDOCK_ADMIN_SECRET", &config.Admin.Secret)

	if os.Getenv("BOTDOCK_CONTAINER_PODMAN") == "" {
		// Auto-detect Podman when not pinned by env.
		if isPodman, podmanSocket := docker.DetectPodman(); isPodman {
			config.ContainerEngine.Podman = true
			config.ContainerEngine.PodmanSock = podmanSocket
		}
	}

	// Use the Podman socket when Podman is enabled and no explicit Docker
	// socket override was given.
	if config.ContainerEngine.Podman && os.Getenv("BOTDOCK_CONTAINER_SOCK") == "" &&
		config.ContainerEngine.PodmanSock != "" {
		config.ContainerEngine.Sock = config.ContainerEngine.PodmanSock
	}
}

// LoadConfig reads config.yml (creating it with defaults on first run),
// applies defaults for missing fields, then applies env overrides.
func (config *Config) LoadConfig() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error getting configuration directory: %w", err)
	}

	configFilePath := filepath.Join(configDir, "config.yml")
	if docker.IsRunningInContainer() && fileExists("./config.yml") {
		configFilePath = "./config.yml"
	}

	configExists := true
	defaultsApplied := false

	_, err = os.Stat(configFilePath)
	if errors.Is(err, fs.ErrNotExist) {
		configExists = false
		logger.Info("Config file not found, creating it", "path", configFilePath)

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("error creating configuration directory: %w", err)
		}

		defaultsApplied = applyDefaults(config)
	} else if err != nil {
		return nil, fmt.Errorf("error checking configuration file: %w", err)
	} else {
		data, err := os.ReadFile(configFilePath)
		if err != nil {
			return nil, fmt.Errorf("error reading configuration file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing configuration file: %w", err)
		}
		defaultsApplied = applyDefaults(config)
	}

	loadConfigFromEnv(config)

	// The domain feeds certificate SANs and webhook URLs, so reject junk
	// here rather than at issuance time.
	if config.Proxy.Domain != "" {
		config.Proxy.Domain = validation.NormalizeDomain(config.Proxy.Domain)
		if err := validation.ValidateDomain(config.Proxy.Domain); err != nil {
			return nil, fmt.Errorf("invalid proxy.domain: %w", err)
		}
	}

	config.Build.RunEnv = os.Getenv("RUN_ENV")
	if config.Build.RunEnv == "" {
		config.Build.RunEnv = "prod"
	}

	if !configExists || defaultsApplied {
		if err := config.SaveConfig(); err != nil {
			return nil, fmt.Errorf("error saving configuration: %w", err)
		}
	}

	logger.Info("Loaded configuration", "path", configFilePath)

	if config.General.LogLevel != "" {
		logger.GetLogger().SetLogLevel(config.General.LogLevel)
	}

	return config, nil
}

// SaveConfig writes the config back to config.yml.
func (config *Config) SaveConfig() error {
	configDir, err := getConfigDir()
	if err != nil {
		return fmt.Errorf("error getting configuration directory: %w", err)
	}

	configFilePath := filepath.Join(configDir, "config.yml")
	if docker.IsRunningInContainer() && fileExists("./config.yml") {
		configFilePath = "./config.yml"
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error marshaling configuration: %w", err)
	}

	if err := os.WriteFile(configFilePath, data, 0600); err != nil {
		return fmt.Errorf("error writing configuration file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DockerInit connects the package-level Docker client using the configured
// socket. A missing engine is reported but not fatal so read-only commands
// still work.
func DockerInit(cc *ContainerEngineConfig) error {
	sock := cc.Sock
	if cc.Podman && cc.PodmanSock != "" {
		sock = cc.PodmanSock
	}

	if err := docker.InitializeClient(&docker.Config{Sock: sock}); err != nil {
		logger.Warn("Container engine unavailable", "sock", sock, "error", err)
		return fmt.Errorf("could not connect to container engine: %w", err)
	}
	return nil
}
