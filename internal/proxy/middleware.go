package proxy

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/botdock/botdock/pkg/logger"
)

// RequestIDKey is the context key holding the per-request ID.
const RequestIDKey = "request_id"

// blockLogCooldown throttles repeated blocked-IP log lines per address.
const blockLogCooldown = 1 * time.Minute

// setupMiddleware configures the HTTPS server chain. The HTTP server carries
// no middleware; its two handlers do their own blocklist check.
func (p *Proxy) setupMiddleware() {
	// The proxy is edge-facing, so the direct remote address is the client.
	// X-Forwarded-For from outside cannot be trusted.
	p.httpsServer.IPExtractor = echo.ExtractIPDirect()
	p.httpServer.IPExtractor = echo.ExtractIPDirect()

	p.httpsServer.Use(p.requestIDMiddleware())
	p.httpsServer.Use(p.blocklistMiddleware())
	p.httpsServer.Use(p.rateLimiterMiddleware())
	p.httpsServer.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Skipper: skipNonWebhook,
		Limit:   fmt.Sprintf("%dB", p.conf.Proxy.MaxBodyBytes()),
	}))

	if p.conf.Proxy.EnableLogs {
		p.httpsServer.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format:           "{\"time\":\"${time_rfc3339_nano}\",\"id\":\"${id}\",\"remote_ip\":\"${remote_ip}\",\"host\":\"${host}\",\"method\":\"${method}\",\"uri\":\"${uri}\",\"user_agent\":\"${user_agent}\",\"status\":${status},\"error\":\"${error}\",\"latency\":${latency},\"latency_human\":\"${latency_human}\",\"bytes_in\":${bytes_in},\"bytes_out\":${bytes_out}}\n",
			CustomTimeFormat: "2006-01-02T15:04:05.00000Z07:00",
		}))
	}
}

// Rate limiting and the body cap apply to webhook traffic only. /health,
// /status, admin, and stray unknown paths stay unmetered.
func skipNonWebhook(c echo.Context) bool {
	return !isWebhookPath(c.Request().URL.Path)
}

func isWebhookPath(path string) bool {
	return path == "/webhook" || strings.HasPrefix(path, "/webhook/")
}

// requestIDMiddleware tags every request with a UUID, honoring an ID already
// supplied by the caller.
func (p *Proxy) requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Set(RequestIDKey, requestID)
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(c)
		}
	}
}

// blocklistMiddleware rejects blocklisted and jailed addresses before any
// routing happens.
func (p *Proxy) blocklistMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if p.blocked(ip) {
				p.logBlockedIP(ip, c.Request().URL.Path, c.Request().UserAgent())
				return c.String(http.StatusForbidden, "Forbidden")
			}
			return next(c)
		}
	}
}

// blocked consults the operator blocklist first, then the jail.
func (p *Proxy) blocked(ip string) bool {
	if p.blocklist != nil && p.blocklist.IsBlocked(ip) {
		return true
	}
	if p.jail != nil {
		jailed, err := p.jail.IsJailed(ip)
		if err != nil {
			logger.Debug("Jail lookup failed", "ip", ip, "error", err)
			return false
		}
		return jailed
	}
	return false
}

// rateLimiterMiddleware applies the per-IP token bucket to webhook paths.
// Each denial earns a strike; enough strikes within the jail's window and the
// blocklist middleware rejects the address before the limiter sees it again.
func (p *Proxy) rateLimiterMiddleware() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(p.conf.Proxy.RateLimit),
				Burst:     p.conf.Proxy.RateBurst,
				ExpiresIn: p.conf.Proxy.RateExpiryDuration(),
			},
		),
		Skipper: skipNonWebhook,
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			jailed := p.strike(identifier)
			logger.Warn("Webhook rate limit exceeded",
				"ip", identifier,
				"path", c.Request().URL.Path,
				"method", c.Request().Method,
				"jailed", jailed)
			return c.JSONBlob(http.StatusTooManyRequests, []byte(rateLimitedBody))
		},
	})
}

// strike records one denial and reports whether the address crossed into the
// jail.
func (p *Proxy) strike(ip string) bool {
	if p.jail == nil {
		return false
	}
	jailed, err := p.jail.Strike(ip)
	if err != nil {
		logger.Debug("Failed to record rate limit strike", "ip", ip, "error", err)
		return false
	}
	return jailed
}

// logBlockedIP logs a denied request, at most once per address per cooldown
// window.
func (p *Proxy) logBlockedIP(ip, path, userAgent string) {
	now := time.Now()

	p.blockLogMu.Lock()
	last, seen := p.blockLog[ip]
	if seen && now.Sub(last) < blockLogCooldown {
		p.blockLogMu.Unlock()
		return
	}
	p.blockLog[ip] = now
	p.blockLogMu.Unlock()

	logger.Warn("Blocked request from denied address",
		"ip", ip,
		"path", path,
		"user_agent", userAgent)
}
