package proxy

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/botdock/botdock/pkg/logger"
)

// reloadWindow caps how often the blocklist stats its backing file.
const reloadWindow = 10 * time.Second

// Blocklist is the operator-managed set of denied source addresses, read from
// blocklist.yml under the storage dir. Plain IPs go under ips, CIDR ranges
// under ranges; a bare IP under ranges means just that address.
type Blocklist struct {
	mu        sync.RWMutex
	path      string
	ips       map[string]struct{}
	networks  []*net.IPNet
	lastMod   time.Time // file mtime at the last successful parse
	checkedAt time.Time // last stat attempt
}

// blocklistFile is the YAML shape on disk.
type blocklistFile struct {
	IPs    []string `yaml:"ips"`
	Ranges []string `yaml:"ranges"`
}

// NewBlocklist loads the blocklist at path, creating an empty file on first
// run so operators have something to edit.
func NewBlocklist(path string) (*Blocklist, error) {
	b := &Blocklist{path: path, ips: make(map[string]struct{})}

	if err := b.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}

		logger.Info("Blocklist file not found, creating empty blocklist", "path", path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		data, _ := yaml.Marshal(blocklistFile{IPs: []string{}, Ranges: []string{}})
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, err
		}
		if err := b.Load(); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Load re-parses the file when its mtime changed since the last parse.
func (b *Blocklist) Load() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkedAt = time.Now()

	info, err := os.Stat(b.path)
	if err != nil {
		return err
	}
	if info.ModTime().Equal(b.lastMod) {
		return nil
	}

	data, err := os.ReadFile(b.path)
	if err != nil {
		return err
	}

	var file blocklistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(b.path), err)
	}

	ips := make(map[string]struct{}, len(file.IPs))
	for _, ip := range file.IPs {
		if net.ParseIP(ip) == nil {
			logger.Warn("Invalid IP in blocklist", "ip", ip)
			continue
		}
		ips[ip] = struct{}{}
	}

	networks := make([]*net.IPNet, 0, len(file.Ranges))
	for _, cidr := range file.Ranges {
		if !strings.Contains(cidr, "/") {
			if ip := net.ParseIP(cidr); ip != nil && ip.To4() == nil {
				cidr += "/128"
			} else {
				cidr += "/32"
			}
		}

		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("Invalid CIDR in blocklist", "cidr", cidr, "error", err)
			continue
		}
		networks = append(networks, network)
	}

	b.ips = ips
	b.networks = networks
	b.lastMod = info.ModTime()

	logger.Info("Loaded blocklist",
		"path", b.path,
		"ips", len(ips),
		"ranges", len(networks))

	return nil
}

// IsBlocked reports whether ip is denied. The file is re-checked at most once
// per reload window.
func (b *Blocklist) IsBlocked(ip string) bool {
	b.maybeReload()

	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.ips[ip]; ok {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range b.networks {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

func (b *Blocklist) maybeReload() {
	b.mu.RLock()
	recent := time.Since(b.checkedAt) < reloadWindow
	b.mu.RUnlock()
	if recent {
		return
	}

	if err := b.Load(); err != nil {
		logger.Error("Failed to reload blocklist", "path", b.path, "error", err)
	}
}
