// Package bot receives Telegram webhook updates for every tenant bot and
// answers customers: it greets them with the catalog and takes orders.
package bot

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"botdesk/internal/models"
	"botdesk/internal/pkg/utils"
	"botdesk/internal/repository"
)

// SecretHeader carries the per-bot secret registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxEventText = 1000

const defaultWelcome = "Welcome to <b>%s</b>! Pick a product below."

// Repos bundles the repositories the relay needs.
type Repos struct {
	Bot      *repository.BotRepository
	Product  *repository.ProductRepository
	Customer *repository.CustomerRepository
	Order    *repository.OrderRepository
	Log      *repository.LogRepository
}

// Relay routes webhook updates to one offline telebot instance per bot.
type Relay struct {
	repos  *Repos
	apiURL string
	logger *zap.Logger

	mu        sync.Mutex
	instances map[string]*instance
}

// instance is a telebot bound to one bot token. Updates for the same bot are
// processed one at a time so current always matches the running handler.
type instance struct {
	mu      sync.Mutex
	token   string
	tb      *tele.Bot
	current models.Bot
}

// NewRelay creates a relay talking to the Bot API at apiURL.
func NewRelay(repos *Repos, apiURL string, logger *zap.Logger) *Relay {
	return &Relay{
		repos:     repos,
		apiURL:    apiURL,
		logger:    logger.Named("relay"),
		instances: make(map[string]*instance),
	}
}

// HandleWebhook serves POST /webhook/:botID.
func (r *Relay) HandleWebhook(c echo.Context) error {
	botID := c.Param("botID")
	bot, err := r.repos.Bot.FindByID(botID)
	if err != nil {
		r.Forget(botID)
		return c.NoContent(http.StatusNotFound)
	}

	secret := c.Request().Header.Get(SecretHeader)
	if bot.WebhookSecret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(bot.WebhookSecret)) != 1 {
		r.logger.Warn("Webhook secret mismatch", zap.String("bot_id", bot.ID), zap.String("ip", c.RealIP()))
		return c.NoContent(http.StatusUnauthorized)
	}

	var upd tele.Update
	if err := json.NewDecoder(c.Request().Body).Decode(&upd); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	r.recordEvent(bot, &upd)

	if bot.Status != models.BotStatusActive {
		// Telegram only needs a 2xx response to stop retries.
		return c.NoContent(http.StatusOK)
	}

	inst, err := r.instance(bot)
	if err != nil {
		r.logger.Error("Failed to create bot instance", zap.String("bot_id", bot.ID), zap.Error(err))
		return c.NoContent(http.StatusOK)
	}

	inst.mu.Lock()
	inst.current = *bot
	inst.tb.Me = &tele.User{Username: bot.Username, IsBot: true}
	inst.tb.ProcessUpdate(upd)
	inst.mu.Unlock()

	return c.NoContent(http.StatusOK)
}

// instance returns the cached telebot for bot, rebuilding it when the token changed.
func (r *Relay) instance(bot *models.Bot) (*instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instances[bot.ID]; ok && inst.token == bot.Token {
		return inst, nil
	}

	inst := &instance{token: bot.Token}
	tb, err := tele.NewBot(tele.Settings{
		Token:       bot.Token,
		URL:         r.apiURL,
		Offline:     true,
		Synchronous: true,
		ParseMode:   tele.ModeHTML,
		Client:      &http.Client{Timeout: 15 * time.Second},
		OnError: func(err error, c tele.Context) {
			r.logger.Error("telebot error", zap.String("bot_id", inst.current.ID), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telebot for bot %s: %w", bot.ID, err)
	}
	inst.tb = tb

	h := &handlers{relay: r, inst: inst}
	tb.Handle("/start", h.start)
	tb.Handle(&tele.Btn{Unique: buyUnique}, h.buy)
	tb.Handle(tele.OnText, h.text)

	r.instances[bot.ID] = inst
	return inst, nil
}

// Forget drops the cached instance of a deleted bot.
func (r *Relay) Forget(botID string) {
	r.mu.Lock()
	delete(r.instances, botID)
	r.mu.Unlock()
}

func (r *Relay) recordEvent(bot *models.Bot, upd *tele.Update) {
	event := &models.WebhookEvent{
		TenantID: bot.TenantID,
		BotID:    bot.ID,
		UpdateID: int64(upd.ID),
		Kind:     "other",
	}
	switch {
	case upd.Message != nil:
		event.Kind = "message"
		event.Text = upd.Message.Text
		if upd.Message.Chat != nil {
			event.ChatID = upd.Message.Chat.ID
		}
	case upd.Callback != nil:
		event.Kind = "callback"
		event.Text = upd.Callback.Data
		if upd.Callback.Sender != nil {
			event.ChatID = upd.Callback.Sender.ID
		}
	}
	event.Text = truncate(event.Text, maxEventText)
	if err := r.repos.Log.CreateWebhookEvent(event); err != nil {
		r.logger.Warn("Failed to record webhook event", zap.String("bot_id", bot.ID), zap.Error(err))
	}
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// handlers are the telebot handlers of one instance.
type handlers struct {
	relay *Relay
	inst  *instance
}

// customer upserts the sender and reports whether they may be served.
func (h *handlers) customer(c tele.Context) (*models.Customer, bool) {
	sender := c.Sender()
	if sender == nil {
		return nil, false
	}
	bot := h.inst.current
	customer := &models.Customer{
		TenantID:     bot.TenantID,
		BotID:        bot.ID,
		TelegramID:   sender.ID,
		Username:     sender.Username,
		FirstName:    sender.FirstName,
		LastName:     sender.LastName,
		LanguageCode: sender.LanguageCode,
		LastSeenAt:   time.Now(),
	}
	if err := h.relay.repos.Customer.Upsert(customer); err != nil {
		h.relay.logger.Error("Failed to upsert customer", zap.String("bot_id", bot.ID), zap.Int64("telegram_id", sender.ID), zap.Error(err))
		return nil, false
	}
	return customer, !customer.Blocked
}

func (h *handlers) start(c tele.Context) error {
	if _, ok := h.customer(c); !ok {
		return nil
	}
	bot := h.inst.current

	welcome := bot.WelcomeText
	if welcome == "" {
		welcome = fmt.Sprintf(defaultWelcome, html.EscapeString(bot.Name))
	}

	products, err := h.relay.repos.Product.FindForSale(bot.TenantID, bot.ID)
	if err != nil {
		h.relay.logger.Error("Failed to load catalog", zap.String("bot_id", bot.ID), zap.Error(err))
	}
	if kb := CatalogKeyboard(products); kb != nil {
		return c.Send(welcome, kb)
	}
	return c.Send(welcome + "\n\nNo products are available right now.")
}

func (h *handlers) buy(c tele.Context) error {
	customer, ok := h.customer(c)
	if !ok {
		return c.Respond()
	}
	bot := h.inst.current

	id, err := strconv.ParseUint(c.Callback().Data, 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown product"})
	}
	product, err := h.relay.repos.Product.FindByID(bot.TenantID, uint(id))
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "This product is no longer available", ShowAlert: true})
	}

	order, err := h.relay.repos.Order.CreateFor(customer, product, "")
	if err != nil {
		if errors.Is(err, repository.ErrProductUnavailable) {
			return c.Respond(&tele.CallbackResponse{Text: "This product is no longer available", ShowAlert: true})
		}
		h.relay.logger.Error("Failed to create order", zap.String("bot_id", bot.ID), zap.Error(err))
		return c.Respond(&tele.CallbackResponse{Text: "Something went wrong, please try again"})
	}

	h.relay.logger.Info("Order placed",
		zap.String("bot_id", bot.ID), zap.String("order", order.Code), zap.Int64("telegram_id", customer.TelegramID))

	_ = c.Respond()
	return c.Send(fmt.Sprintf("Order <code>%s</code> for <b>%s</b> (%s) is waiting for payment. You will receive it here once paid.",
		order.Code, html.EscapeString(product.Name), utils.FormatPrice(order.Amount, order.Currency)))
}

func (h *handlers) text(c tele.Context) error {
	if _, ok := h.customer(c); !ok {
		return nil
	}
	return c.Send("Send /start to see the catalog.")
}
