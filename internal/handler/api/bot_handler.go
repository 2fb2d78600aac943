package api

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"botdesk/internal/models"
	"botdesk/internal/pkg/telegram"
	"botdesk/internal/pkg/utils"
	"botdesk/internal/repository"
	"botdesk/internal/selection"
)

// Options carries the Telegram endpoints handlers talk to.
type Options struct {
	TelegramAPIURL string
	WebhookBaseURL string
}

// botView is a bot as shown to its merchant: the token is masked.
type botView struct {
	models.Bot
	TokenMasked string `json:"token_masked"`
}

func botViews(bots []models.Bot) []botView {
	views := make([]botView, 0, len(bots))
	for _, b := range bots {
		views = append(views, botView{Bot: b, TokenMasked: utils.MaskToken(b.Token)})
	}
	return views
}

// BotHandler manages a tenant's bots. Every change is announced on the feed so
// open sessions reconcile their selected bot.
type BotHandler struct {
	repos  *Repos
	feed   *selection.Feed
	opts   Options
	logger *zap.Logger
}

func NewBotHandler(repos *Repos, feed *selection.Feed, opts Options, logger *zap.Logger) *BotHandler {
	return &BotHandler{repos: repos, feed: feed, opts: opts, logger: logger}
}

// Handle routes bot API requests.
// POST /api/bots
func (h *BotHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "bots":
		return h.listBots(c)
	case "bot":
		return h.getBot(c, body)
	case "bot_add":
		return h.addBot(c, body)
	case "bot_edit":
		return h.editBot(c, body)
	case "bot_delete":
		return h.deleteBot(c, body)
	case "bot_set_primary":
		return h.setPrimary(c, body)
	case "bot_events":
		return h.botEvents(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

// changed notifies every session of the tenant and brings the caller's own
// session up to date before the response is written. A local dispatch has
// already refetched it.
func (h *BotHandler) changed(c echo.Context) {
	ctx := c.Request().Context()
	tid := tenantID(c)
	if h.feed != nil && h.feed.Notify(ctx, tid) {
		return
	}
	if err := selection.FromContext(ctx).Refetch(ctx); err != nil {
		h.logger.Warn("Failed to refresh session after bot change", zap.String("tenant_id", tid), zap.Error(err))
	}
}

func (h *BotHandler) webhookURL(botID string) string {
	if h.opts.WebhookBaseURL == "" {
		return ""
	}
	return strings.TrimRight(h.opts.WebhookBaseURL, "/") + "/webhook/" + botID
}

// registerWebhook points the bot at this server. It is skipped when no public
// base URL is configured.
func (h *BotHandler) registerWebhook(ctx context.Context, bot *models.Bot) error {
	url := h.webhookURL(bot.ID)
	if url == "" {
		return nil
	}
	return telegram.NewBotAPI(h.opts.TelegramAPIURL, bot.Token).SetWebhook(ctx, url, bot.WebhookSecret)
}

func (h *BotHandler) listBots(c echo.Context) error {
	bots, err := h.repos.Bot.FindByTenant(tenantID(c))
	if err != nil {
		h.logger.Error("Failed to list bots", zap.Error(err))
		return errorResponse(c, "Failed to retrieve bots")
	}
	return successResponse(c, "Successful", map[string]interface{}{"bots": botViews(bots)})
}

func (h *BotHandler) getBot(c echo.Context, body map[string]interface{}) error {
	var req models.StringIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	bot, err := h.repos.Bot.FindForTenant(tenantID(c), req.ID)
	if err != nil {
		return errorResponse(c, "Bot not found")
	}
	customers, _ := h.repos.Customer.CountByTenant(bot.TenantID, bot.ID)
	stats, _ := h.repos.Order.Stats(bot.TenantID, repository.OrderFilter{BotID: bot.ID})

	return successResponse(c, "Successful", map[string]interface{}{
		"bot":             botViews([]models.Bot{*bot})[0],
		"count_customers": customers,
		"orders":          stats,
	})
}

func (h *BotHandler) addBot(c echo.Context, body map[string]interface{}) error {
	var req models.BotAddRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	token := strings.TrimSpace(req.Token)
	if _, ok := utils.BotIDFromToken(token); !ok {
		return errorResponse(c, "Invalid bot token")
	}
	ctx := c.Request().Context()
	tid := tenantID(c)

	exists, err := h.repos.Bot.ExistsByToken(token)
	if err != nil {
		return errorResponse(c, "Failed to create bot")
	}
	if exists {
		return errorResponse(c, "Bot token is already registered")
	}

	me, err := telegram.NewBotAPI(h.opts.TelegramAPIURL, token).GetMe(ctx)
	if err != nil {
		h.logger.Info("Bot token rejected by Telegram", zap.String("token", utils.MaskToken(token)), zap.Error(err))
		return errorResponse(c, "Invalid bot token")
	}

	existing, err := h.repos.Bot.FindByTenant(tid)
	if err != nil {
		return errorResponse(c, "Failed to create bot")
	}

	name := req.Name
	if name == "" {
		name = me.FirstName
	}
	bot := &models.Bot{
		ID:            utils.GenerateUUID(),
		TenantID:      tid,
		Name:          name,
		Username:      me.Username,
		Token:         token,
		WebhookSecret: utils.RandomHex(16),
		WelcomeText:   req.WelcomeText,
		Config:        req.Config,
		IsPrimary:     req.IsPrimary || len(existing) == 0,
		Status:        models.BotStatusActive,
	}
	if err := h.repos.Bot.Create(bot); err != nil {
		h.logger.Error("Failed to create bot", zap.Error(err))
		return errorResponse(c, "Failed to create bot")
	}

	msg := "Bot created successfully"
	if err := h.registerWebhook(ctx, bot); err != nil {
		h.logger.Warn("Failed to register webhook", zap.String("bot_id", bot.ID), zap.Error(err))
		msg = "Bot created, webhook registration failed"
	}

	h.logger.Info("Bot created", zap.String("tenant_id", tid), zap.String("bot_id", bot.ID), zap.String("username", bot.Username))
	h.changed(c)
	return successResponse(c, msg, botViews([]models.Bot{*bot})[0])
}

func (h *BotHandler) editBot(c echo.Context, body map[string]interface{}) error {
	var req models.BotEditRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	ctx := c.Request().Context()
	tid := tenantID(c)

	bot, err := h.repos.Bot.FindForTenant(tid, req.ID)
	if err != nil {
		return errorResponse(c, "Bot not found")
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.WelcomeText != nil {
		updates["welcome_text"] = *req.WelcomeText
	}
	if req.Config != nil {
		updates["config"] = *req.Config
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}

	tokenChanged := false
	if req.Token != nil && strings.TrimSpace(*req.Token) != bot.Token {
		token := strings.TrimSpace(*req.Token)
		if exists, err := h.repos.Bot.ExistsByToken(token); err != nil || exists {
			return errorResponse(c, "Bot token is already registered")
		}
		if _, ok := utils.BotIDFromToken(token); !ok {
			return errorResponse(c, "Invalid bot token")
		}
		me, err := telegram.NewBotAPI(h.opts.TelegramAPIURL, token).GetMe(ctx)
		if err != nil {
			return errorResponse(c, "Invalid bot token")
		}
		updates["token"] = token
		updates["username"] = me.Username
		bot.Token = token
		tokenChanged = true
	}

	if len(updates) == 0 {
		return errorResponse(c, "No fields to update")
	}
	if err := h.repos.Bot.Update(tid, bot.ID, updates); err != nil {
		h.logger.Error("Failed to update bot", zap.String("bot_id", bot.ID), zap.Error(err))
		return errorResponse(c, "Failed to update bot")
	}

	msg := "Bot updated successfully"
	if tokenChanged {
		if err := h.registerWebhook(ctx, bot); err != nil {
			h.logger.Warn("Failed to register webhook", zap.String("bot_id", bot.ID), zap.Error(err))
			msg = "Bot updated, webhook registration failed"
		}
	}

	h.changed(c)
	updated, _ := h.repos.Bot.FindForTenant(tid, bot.ID)
	if updated == nil {
		return successResponse(c, msg, nil)
	}
	return successResponse(c, msg, botViews([]models.Bot{*updated})[0])
}

func (h *BotHandler) deleteBot(c echo.Context, body map[string]interface{}) error {
	var req models.StringIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	ctx := c.Request().Context()
	tid := tenantID(c)

	bot, err := h.repos.Bot.FindForTenant(tid, req.ID)
	if err != nil {
		return errorResponse(c, "Bot not found")
	}
	if err := h.repos.Bot.Delete(tid, bot.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Bot not found")
		}
		h.logger.Error("Failed to delete bot", zap.String("bot_id", bot.ID), zap.Error(err))
		return errorResponse(c, "Failed to delete bot")
	}

	if h.webhookURL(bot.ID) != "" {
		if err := telegram.NewBotAPI(h.opts.TelegramAPIURL, bot.Token).DeleteWebhook(ctx); err != nil {
			h.logger.Warn("Failed to remove webhook", zap.String("bot_id", bot.ID), zap.Error(err))
		}
	}

	h.logger.Info("Bot deleted", zap.String("tenant_id", tid), zap.String("bot_id", bot.ID))
	h.changed(c)
	return successResponse(c, "Bot deleted successfully", nil)
}

func (h *BotHandler) setPrimary(c echo.Context, body map[string]interface{}) error {
	var req models.StringIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	if err := h.repos.Bot.SetPrimary(tenantID(c), req.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Bot not found")
		}
		h.logger.Error("Failed to set primary bot", zap.String("bot_id", req.ID), zap.Error(err))
		return errorResponse(c, "Failed to set primary bot")
	}

	h.changed(c)
	return successResponse(c, "Primary bot updated successfully", nil)
}

func (h *BotHandler) botEvents(c echo.Context, body map[string]interface{}) error {
	var req models.StringIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	limit := getIntField(body, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	events, err := h.repos.Log.RecentWebhookEvents(tenantID(c), req.ID, limit)
	if err != nil {
		return errorResponse(c, "Failed to retrieve events")
	}
	return successResponse(c, "Successful", map[string]interface{}{"events": events})
}
