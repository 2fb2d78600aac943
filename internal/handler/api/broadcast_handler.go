package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"botdesk/internal/models"
)

// BroadcastHandler queues messages to every customer of a bot. The scheduler
// sends them in batches.
type BroadcastHandler struct {
	repos  *Repos
	logger *zap.Logger
}

func NewBroadcastHandler(repos *Repos, logger *zap.Logger) *BroadcastHandler {
	return &BroadcastHandler{repos: repos, logger: logger}
}

// Handle routes broadcast API requests.
// POST /api/broadcasts
func (h *BroadcastHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "broadcasts":
		return h.listBroadcasts(c, body)
	case "broadcast":
		return h.getBroadcast(c, body)
	case "broadcast_add":
		return h.addBroadcast(c, body)
	case "broadcast_cancel":
		return h.cancelBroadcast(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *BroadcastHandler) listBroadcasts(c echo.Context, body map[string]interface{}) error {
	req, err := listParams(body)
	if err != nil {
		return errorResponse(c, err.Error())
	}

	broadcasts, total, err := h.repos.Broadcast.FindAll(tenantID(c), req.Limit, req.Page)
	if err != nil {
		h.logger.Error("Failed to list broadcasts", zap.Error(err))
		return errorResponse(c, "Failed to retrieve broadcasts")
	}
	return successResponse(c, "Successful", paginatedNamedResponse("broadcasts", broadcasts, total, req.Page, req.Limit))
}

func (h *BroadcastHandler) getBroadcast(c echo.Context, body map[string]interface{}) error {
	var req models.NumericIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	b, err := h.repos.Broadcast.FindByID(tenantID(c), req.ID)
	if err != nil {
		return errorResponse(c, "Broadcast not found")
	}
	pending, _ := h.repos.Broadcast.CountPendingItems(b.ID)

	return successResponse(c, "Successful", map[string]interface{}{
		"broadcast":     b,
		"pending_items": pending,
	})
}

func (h *BroadcastHandler) addBroadcast(c echo.Context, body map[string]interface{}) error {
	var req models.BroadcastAddRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	tid := tenantID(c)

	botID := scopeBotID(c, req.BotID)
	if botID == "" {
		return errorResponse(c, "No bot selected")
	}
	if _, err := h.repos.Bot.FindForTenant(tid, botID); err != nil {
		return errorResponse(c, "Bot not found")
	}

	chatIDs, err := h.repos.Customer.ChatIDsForBot(tid, botID)
	if err != nil {
		h.logger.Error("Failed to collect broadcast recipients", zap.Error(err))
		return errorResponse(c, "Failed to create broadcast")
	}

	b := &models.Broadcast{TenantID: tid, BotID: botID, Message: req.Message}
	if err := h.repos.Broadcast.CreateWithItems(b, chatIDs); err != nil {
		h.logger.Error("Failed to create broadcast", zap.Error(err))
		return errorResponse(c, "Failed to create broadcast")
	}

	h.logger.Info("Broadcast queued", zap.String("tenant_id", tid), zap.Uint("broadcast_id", b.ID), zap.Int("recipients", b.TotalItems))
	return successResponse(c, "Broadcast queued", b)
}

func (h *BroadcastHandler) cancelBroadcast(c echo.Context, body map[string]interface{}) error {
	var req models.NumericIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	ok, err := h.repos.Broadcast.Cancel(tenantID(c), req.ID)
	if err != nil {
		return errorResponse(c, "Failed to cancel broadcast")
	}
	if !ok {
		return errorResponse(c, "Broadcast not found or already finished")
	}
	return successResponse(c, "Broadcast canceled", nil)
}
