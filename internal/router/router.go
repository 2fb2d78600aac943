package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"botdesk/internal/bot"
	"botdesk/internal/handler/api"
	"botdesk/internal/middleware"
	"botdesk/internal/selection"
)

// Deps carries everything the routes are built from.
type Deps struct {
	Repos         *api.Repos
	Manager       *selection.Manager
	Feed          *selection.Feed
	Relay         *bot.Relay
	UpdateDeduper middleware.UpdateDeduper
	Options       api.Options
	AdminKey      string
	// CheckTelegramIP restricts the webhook route to Telegram's published ranges.
	CheckTelegramIP bool
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, deps Deps, logger *zap.Logger) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	repos := deps.Repos

	// Handlers
	tenantHandler := api.NewTenantHandler(repos, deps.Manager, logger)
	botHandler := api.NewBotHandler(repos, deps.Feed, deps.Options, logger)
	sessionHandler := api.NewSessionHandler(logger)
	productHandler := api.NewProductHandler(repos, logger)
	customerHandler := api.NewCustomerHandler(repos, logger)
	orderHandler := api.NewOrderHandler(repos, deps.Options, logger)
	broadcastHandler := api.NewBroadcastHandler(repos, logger)

	// Operator routes
	adminGroup := e.Group("/admin")
	adminGroup.Use(middleware.AdminAuth(deps.AdminKey))
	adminGroup.Use(middleware.APILogger(repos.Log, logger))
	adminGroup.POST("/tenants", tenantHandler.Handle)
	adminGroup.GET("/tenants", tenantHandler.Handle)

	// Tenant routes: auth, then the selection session, then logging
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.TenantAuth(repos.Tenant))
	apiGroup.Use(middleware.TenantSession(deps.Manager))
	apiGroup.Use(middleware.APILogger(repos.Log, logger))

	apiGroup.POST("/bots", botHandler.Handle)
	apiGroup.GET("/bots", botHandler.Handle)
	apiGroup.POST("/session", sessionHandler.Handle)
	apiGroup.GET("/session", sessionHandler.Handle)
	apiGroup.POST("/products", productHandler.Handle)
	apiGroup.GET("/products", productHandler.Handle)
	apiGroup.POST("/customers", customerHandler.Handle)
	apiGroup.GET("/customers", customerHandler.Handle)
	apiGroup.POST("/orders", orderHandler.Handle)
	apiGroup.GET("/orders", orderHandler.Handle)
	apiGroup.POST("/broadcasts", broadcastHandler.Handle)
	apiGroup.GET("/broadcasts", broadcastHandler.Handle)

	// Telegram webhooks, one path per bot
	webhookGroup := e.Group("/webhook")
	if deps.CheckTelegramIP {
		webhookGroup.Use(middleware.TelegramIPCheck())
	}
	webhookGroup.Use(middleware.TelegramUpdateDedup(deps.UpdateDeduper))
	webhookGroup.POST("/:botID", deps.Relay.HandleWebhook)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}
