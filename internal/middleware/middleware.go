package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"botdesk/internal/models"
	"botdesk/internal/pkg/telegram"
	"botdesk/internal/repository"
	"botdesk/internal/selection"
)

const (
	tenantKey = "tenant"

	// ActionKey is set by handlers to the routed action for request logging.
	ActionKey = "api_actions"

	defaultSession = "default"
)

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, models.APIResponse{Status: false, Msg: msg})
}

// AdminAuth validates the Token header against the operator API key.
func AdminAuth(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get("Token")
			if token == "" {
				return unauthorized(c, "Token is required")
			}
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				return unauthorized(c, "Invalid token")
			}
			return next(c)
		}
	}
}

// TenantAuth resolves the Token header to an active tenant.
func TenantAuth(tenants *repository.TenantRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get("Token")
			if token == "" {
				return unauthorized(c, "Token is required")
			}

			tenant, err := tenants.FindByAPIKey(token)
			if err != nil || !tenant.IsActive() {
				return unauthorized(c, "Invalid token")
			}

			c.Set(tenantKey, tenant)
			return next(c)
		}
	}
}

// TenantFrom returns the tenant stored by TenantAuth.
func TenantFrom(c echo.Context) *models.Tenant {
	t, _ := c.Get(tenantKey).(*models.Tenant)
	return t
}

// TenantSession opens, or reuses, the selection session named by the Session
// header and attaches it to the request context. It must run after TenantAuth.
func TenantSession(manager *selection.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenant := TenantFrom(c)
			if tenant == nil {
				return unauthorized(c, "Tenant is required")
			}

			id := strings.TrimSpace(c.Request().Header.Get("Session"))
			if id == "" {
				id = defaultSession
			}
			if len(id) > 64 {
				return c.JSON(http.StatusBadRequest, models.APIResponse{Status: false, Msg: "Session header too long"})
			}

			req := c.Request()
			s := manager.Open(req.Context(), tenant.ID, id)
			c.SetRequest(req.WithContext(selection.WithSession(req.Context(), s)))
			return next(c)
		}
	}
}

// APILogger writes one api_logs row per request.
func APILogger(logs *repository.LogRepository, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			entry := &models.APILog{
				IP:     c.RealIP(),
				Method: c.Request().Method,
				Path:   c.Path(),
				Status: c.Response().Status,
			}
			entry.Action, _ = c.Get(ActionKey).(string)
			if t := TenantFrom(c); t != nil {
				entry.TenantID = t.ID
			}

			// Log to database (async, non-blocking)
			go func() {
				if err := logs.CreateAPILog(entry); err != nil {
					logger.Debug("Failed to write API log", zap.Error(err))
				}
			}()

			return err
		}
	}
}

// TelegramIPCheck ensures requests come from Telegram's IP range.
func TelegramIPCheck() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !telegram.CheckTelegramIP(ip) && ip != "127.0.0.1" && ip != "::1" {
				return c.String(http.StatusForbidden, "Forbidden")
			}
			return next(c)
		}
	}
}

// CORS configures CORS headers.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Access-Control-Allow-Origin", "*")
			c.Response().Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type, Token, Session, Authorization")
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
