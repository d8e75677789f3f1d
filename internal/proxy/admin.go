package proxy

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/botdock/botdock/pkg/logger"
)

// Admin endpoints exist for the operator CLI on the same host. Tokens are
// short-lived HS256 signed with the per-install secret from the config.
const (
	adminTokenIssuer = "botdock"
	adminTokenTTL    = 5 * time.Minute
)

// MintAdminToken signs a short-lived bearer token for the admin endpoints.
func MintAdminToken(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("admin secret is empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"jti": uuid.New().String(),
		"sub": "admin",
		"iss": adminTokenIssuer,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(adminTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// adminAuth verifies the bearer token on admin routes.
func (p *Proxy) adminAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
				}
				return []byte(p.conf.Admin.Secret), nil
			}, jwt.WithIssuer(adminTokenIssuer), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				logger.Debug("Rejected admin token", "ip", c.RealIP(), "error", err)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			return next(c)
		}
	}
}

// adminBotView is the wire shape for one registered bot. The token column
// never leaves the daemon.
type adminBotView struct {
	Name       string `json:"name"`
	Image      string `json:"image"`
	Active     bool   `json:"active"`
	WebhookURL string `json:"webhook_url"`
	UpdatedAt  string `json:"updated_at"`
}

func (p *Proxy) handleAdminBots(c echo.Context) error {
	if p.listBots == nil {
		return c.JSON(http.StatusOK, []adminBotView{})
	}

	bots, err := p.listBots()
	if err != nil {
		logger.Error("Failed to list bots for admin endpoint", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registry unavailable"})
	}

	views := make([]adminBotView, 0, len(bots))
	for _, bot := range bots {
		views = append(views, adminBotView{
			Name:       bot.Name,
			Image:      bot.Image,
			Active:     bot.Active,
			WebhookURL: bot.WebhookURL,
			UpdatedAt:  bot.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, views)
}
