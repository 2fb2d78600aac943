package api

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"botdesk/internal/models"
	"botdesk/internal/selection"
)

// SessionHandler exposes the active bot of the caller's dashboard session.
type SessionHandler struct {
	logger *zap.Logger
}

func NewSessionHandler(logger *zap.Logger) *SessionHandler {
	return &SessionHandler{logger: logger}
}

// Handle routes session API requests.
// GET|POST /api/session
func (h *SessionHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "", "session":
		return h.session(c)
	case "select_bot":
		return h.selectBot(c, body)
	case "refetch":
		return h.refetch(c)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *SessionHandler) session(c echo.Context) error {
	s := selection.FromContext(c.Request().Context())
	return successResponse(c, "Successful", s.Snapshot())
}

func (h *SessionHandler) selectBot(c echo.Context, body map[string]interface{}) error {
	var req models.SelectBotRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	ctx := c.Request().Context()
	s := selection.FromContext(ctx)

	if err := s.SetSelectedBot(ctx, models.Bot{ID: req.BotID, TenantID: s.TenantID()}); err != nil {
		if errors.Is(err, selection.ErrUnknownBot) {
			return errorResponse(c, "Bot not found")
		}
		return errorResponse(c, "Failed to select bot")
	}

	h.logger.Debug("Bot selected",
		zap.String("tenant_id", s.TenantID()), zap.String("session_id", s.ID()), zap.String("bot_id", req.BotID))
	return successResponse(c, "Bot selected", s.Snapshot())
}

func (h *SessionHandler) refetch(c echo.Context) error {
	ctx := c.Request().Context()
	s := selection.FromContext(ctx)

	if err := s.Refetch(ctx); err != nil {
		h.logger.Error("Failed to refetch bots", zap.String("tenant_id", s.TenantID()), zap.Error(err))
		return errorResponse(c, "Failed to load bots")
	}
	return successResponse(c, "Successful", s.Snapshot())
}

// selectedBotID returns the id of the session's active bot, or "" when the
// tenant has no bots.
func selectedBotID(c echo.Context) string {
	if b := selection.FromContext(c.Request().Context()).SelectedBot(); b != nil {
		return b.ID
	}
	return ""
}

// scopeBotID picks the bot a list is scoped to: the requested bot if any,
// else the session's active bot.
func scopeBotID(c echo.Context, requested string) string {
	if requested != "" {
		return requested
	}
	return selectedBotID(c)
}
