// Package proxy implements the public webhook edge: an HTTPS server that
// terminates TLS and forwards /webhook/<bot> traffic onto the container
// network, and an HTTP server that answers ACME HTTP-01 challenges and
// redirects everything else to HTTPS.
package proxy

import (
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/botdock/botdock/internal/cert"
	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/pkg/kv"
	"github.com/botdock/botdock/pkg/logger"
	"github.com/botdock/botdock/pkg/validation"
)

// - core.go       - Proxy structure, constructor, webhook target resolution
// - routes.go     - handlers: health, status, webhook proxying, ACME, redirect
// - middleware.go - request IDs, blocklist enforcement, rate limiting
// - blocklist.go  - operator-managed IP blocklist with mtime reload
// - admin.go      - JWT-protected admin endpoints
// - server.go     - listener startup and shutdown

// Deps are the collaborators the proxy serves from. Certs and Challenges come
// from the certificate manager; Jail, CountBots and ListBots may be nil, which
// disables jailing and reports an empty registry.
type Deps struct {
	Certs      *cert.Store
	Challenges *cert.ChallengeProvider
	Jail       *kv.Jail
	CountBots  func() (int, error)
	ListBots   func() ([]db.Bot, error)
}

// Proxy is the webhook edge server pair.
type Proxy struct {
	conf        *common.Config
	httpsServer *echo.Echo
	httpServer  *echo.Echo

	certs      *cert.Store
	challenges *cert.ChallengeProvider
	jail       *kv.Jail
	blocklist  *Blocklist

	countBots func() (int, error)
	listBots  func() ([]db.Bot, error)

	// upstream maps a bot identifier to its host:port on the shared network.
	// Swapped out by tests to point at a local listener.
	upstream func(bot string) string

	// transport is shared by every proxied request so upstream connections
	// are pooled across webhooks.
	transport *http.Transport

	startTime time.Time
	lastBots  atomic.Int64

	httpsListener *http.Server
	httpListener  *http.Server
	started       bool

	// Throttle state for blocked-IP log lines.
	blockLogMu sync.Mutex
	blockLog   map[string]time.Time
}

// NewProxy builds the proxy with middleware and routes registered. Listeners
// are not started until Start.
func NewProxy(conf *common.Config, deps Deps) (*Proxy, error) {
	logger.Debug("Initializing webhook proxy")

	httpsServer := echo.New()
	httpsServer.HideBanner = true

	httpServer := echo.New()
	httpServer.HideBanner = true

	blocklistPath := filepath.Join(conf.General.StorageDir, "blocklist.yml")
	blocklist, err := NewBlocklist(blocklistPath)
	if err != nil {
		logger.Warn("Failed to initialize blocklist, continuing without it", "path", blocklistPath, "error", err)
	}

	botPort := conf.ContainerEngine.BotPort

	p := &Proxy{
		conf:        conf,
		httpsServer: httpsServer,
		httpServer:  httpServer,
		certs:       deps.Certs,
		challenges:  deps.Challenges,
		jail:        deps.Jail,
		blocklist:   blocklist,
		countBots:   deps.CountBots,
		listBots:    deps.ListBots,
		upstream: func(bot string) string {
			return formatHostPort(bot, botPort)
		},
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
		startTime: time.Now(),
		blockLog:  make(map[string]time.Time),
	}

	p.setupMiddleware()
	p.registerRoutes()

	logger.Debug("Webhook proxy initialized", "bot_port", botPort)
	return p, nil
}

// webhookTarget holds the parts of a resolved upstream address.
type webhookTarget struct {
	Bot   string // bot identifier, also the container's network alias
	Rest  string // path remainder after the identifier, leading slash included
	Query string // original raw query string
}

// resolveTarget maps a request path onto a bot container. The path segment IS
// the route: /webhook/<bot> or /webhook/<bot>/<rest>, no registry lookup. An
// identifier that matches no running container surfaces later as an
// unreachable upstream.
func resolveTarget(path, rawQuery string) (*webhookTarget, bool) {
	after, ok := strings.CutPrefix(path, "/webhook/")
	if !ok {
		return nil, false
	}

	bot, rest, nested := strings.Cut(after, "/")
	if validation.ValidateBotName(bot) != nil {
		return nil, false
	}

	target := &webhookTarget{Bot: bot, Query: rawQuery}
	if nested {
		target.Rest = "/" + rest
	}
	return target, true
}

// formatHostPort joins host and port, bracketing IPv6 literals. Bot
// identifiers are DNS names so the bracket case never fires in practice.
func formatHostPort(host string, port int) string {
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
