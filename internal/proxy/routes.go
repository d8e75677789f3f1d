package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/botdock/botdock/pkg/logger"
)

// Fixed error bodies. Upstream failure detail never reaches Telegram; the
// unavailable body is the same bytes for every failure mode.
const (
	notFoundBody    = `{"error":"not_found","message":"no bot is registered for this path"}`
	unavailableBody = `{"error":"unavailable","message":"bot temporarily unavailable"}`
	rateLimitedBody = `{"error":"rate_limited","message":"too many requests"}`
)

// errUpstreamGateway routes 502/503/504 bot responses through the same error
// path as dial failures, so the client sees one body either way.
var errUpstreamGateway = errors.New("upstream gateway status")

// registerRoutes wires the fixed endpoints and the webhook catch-all on the
// HTTPS server, and the ACME challenge plus redirect pair on the HTTP server.
func (p *Proxy) registerRoutes() {
	p.httpsServer.GET("/health", p.handleHealth)
	p.httpsServer.GET("/status", p.handleStatus)
	p.httpsServer.GET("/admin/bots", p.handleAdminBots, p.adminAuth())
	p.httpsServer.Any("/*", p.handleWebhook)

	p.httpServer.GET("/.well-known/acme-challenge/:token", p.handleChallenge)
	p.httpServer.Any("/*", p.handleRedirect)
}

func (p *Proxy) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type statusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Version       string `json:"version"`
	Bots          int    `json:"bots"`
}

// handleStatus reports daemon liveness. The bot count comes from the registry
// table, never from probing containers.
func (p *Proxy) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(p.startTime).Seconds()),
		Version:       p.conf.GetVersion(),
		Bots:          p.activeBotCount(),
	})
}

// activeBotCount returns the number of active bot rows, holding the last good
// count across transient registry errors.
func (p *Proxy) activeBotCount() int {
	if p.countBots == nil {
		return 0
	}
	n, err := p.countBots()
	if err != nil {
		logger.Debug("Active bot count unavailable, reporting last known", "error", err)
		return int(p.lastBots.Load())
	}
	p.lastBots.Store(int64(n))
	return n
}

// handleWebhook is the catch-all for the HTTPS server. Anything that does not
// resolve to a bot identifier gets the fixed not-found body.
func (p *Proxy) handleWebhook(c echo.Context) error {
	target, ok := resolveTarget(c.Request().URL.Path, c.Request().URL.RawQuery)
	if !ok {
		return c.JSONBlob(http.StatusNotFound, []byte(notFoundBody))
	}
	return p.proxyRequest(c, target)
}

// proxyRequest forwards the request to the bot container named by the target.
// The upstream path is always /webhook plus the remainder; the public Host
// header survives the hop.
func (p *Proxy) proxyRequest(c echo.Context, target *webhookTarget) error {
	host := c.Request().Host
	upstreamURL := &url.URL{
		Scheme: "http", // containers speak plain HTTP on the shared network
		Host:   p.upstream(target.Bot),
	}

	proxy := httputil.NewSingleHostReverseProxy(upstreamURL)
	proxy.Transport = p.transport

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)

		// The bot sees the path it would see without a proxy in front.
		req.URL.Path = "/webhook" + target.Rest
		req.URL.RawPath = ""
		req.URL.RawQuery = target.Query

		// Keep the original host in the Host header.
		req.Host = host

		if clientIP := c.RealIP(); clientIP != "" {
			req.Header.Set("X-Forwarded-For", clientIP)
			req.Header.Set("X-Real-IP", clientIP)
		}
		req.Header.Set("X-Forwarded-Proto", c.Scheme())
		req.Header.Set("X-Forwarded-Host", host)
	}

	// 502/503/504 from the bot collapse into the fixed unavailable body.
	// Every other upstream status passes through untouched.
	proxy.ModifyResponse = func(resp *http.Response) error {
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return errUpstreamGateway
		}
		return nil
	}

	proxy.ErrorHandler = func(rw http.ResponseWriter, req *http.Request, err error) {
		if errors.Is(err, errUpstreamGateway) {
			logger.Warn("Bot returned a gateway status",
				"bot", target.Bot,
				"upstream", upstreamURL.Host)
		} else {
			logger.Warn("Bot unreachable",
				"bot", target.Bot,
				"upstream", upstreamURL.Host,
				"error", err)
		}

		rw.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rw.WriteHeader(http.StatusServiceUnavailable)
		if _, werr := rw.Write([]byte(unavailableBody)); werr != nil {
			logger.Debug("Failed to write unavailable response", "error", werr)
		}
	}

	proxy.ServeHTTP(c.Response(), c.Request())
	return nil
}

// handleChallenge serves pending HTTP-01 key authorizations from the
// challenge provider shared with the certificate manager.
func (p *Proxy) handleChallenge(c echo.Context) error {
	if p.challenges == nil {
		return c.String(http.StatusNotFound, "no pending challenge")
	}
	keyAuth, ok := p.challenges.KeyAuth(c.Param("token"))
	if !ok {
		logger.Debug("Unknown ACME challenge token", "ip", c.RealIP())
		return c.String(http.StatusNotFound, "no pending challenge")
	}
	return c.String(http.StatusOK, keyAuth)
}

// handleRedirect sends every non-ACME HTTP request to the HTTPS listener.
func (p *Proxy) handleRedirect(c echo.Context) error {
	clientIP := c.RealIP()
	if p.blocked(clientIP) {
		p.logBlockedIP(clientIP, c.Request().URL.Path, c.Request().UserAgent())
		return c.String(http.StatusForbidden, "Forbidden")
	}

	host := c.Request().Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return c.Redirect(http.StatusMovedPermanently,
		fmt.Sprintf("https://%s%s", host, c.Request().RequestURI))
}
