package api

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"botdesk/internal/models"
	"botdesk/internal/pkg/telegram"
	"botdesk/internal/repository"
)

// OrderHandler handles order API actions. Paying an order delivers the
// product content to the customer through the bot that sold it.
type OrderHandler struct {
	repos  *Repos
	opts   Options
	logger *zap.Logger
}

func NewOrderHandler(repos *Repos, opts Options, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{repos: repos, opts: opts, logger: logger}
}

// Handle routes order API requests.
// POST /api/orders
func (h *OrderHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "orders":
		return h.listOrders(c, body)
	case "order":
		return h.getOrder(c, body)
	case "order_add":
		return h.addOrder(c, body)
	case "order_mark_paid":
		return h.markPaid(c, body)
	case "order_deliver":
		return h.redeliver(c, body)
	case "order_cancel":
		return h.cancelOrder(c, body)
	case "order_stats":
		return h.stats(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *OrderHandler) listOrders(c echo.Context, body map[string]interface{}) error {
	req, err := listParams(body)
	if err != nil {
		return errorResponse(c, err.Error())
	}
	f := repository.OrderFilter{BotID: scopeBotID(c, req.BotID), Status: req.Status, Query: req.Q}

	orders, total, err := h.repos.Order.FindAll(tenantID(c), f, req.Limit, req.Page)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		return errorResponse(c, "Failed to retrieve orders")
	}

	resp := paginatedNamedResponse("orders", orders, total, req.Page, req.Limit)
	resp["bot_id"] = f.BotID
	return successResponse(c, "Successful", resp)
}

func (h *OrderHandler) getOrder(c echo.Context, body map[string]interface{}) error {
	var req models.NumericIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	tid := tenantID(c)

	order, err := h.repos.Order.FindByID(tid, req.ID)
	if err != nil {
		return errorResponse(c, "Order not found")
	}
	customer, _ := h.repos.Customer.FindByID(tid, order.CustomerID)

	return successResponse(c, "Successful", map[string]interface{}{
		"order":    order,
		"customer": customer,
	})
}

func (h *OrderHandler) addOrder(c echo.Context, body map[string]interface{}) error {
	var req models.OrderAddRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	tid := tenantID(c)

	customer, err := h.repos.Customer.FindByID(tid, req.CustomerID)
	if err != nil {
		return errorResponse(c, "Customer not found")
	}
	product, err := h.repos.Product.FindByID(tid, req.ProductID)
	if err != nil {
		return errorResponse(c, "Product not found")
	}

	order, err := h.repos.Order.CreateFor(customer, product, req.Note)
	if err != nil {
		if errors.Is(err, repository.ErrProductUnavailable) {
			return errorResponse(c, "Product is not available")
		}
		h.logger.Error("Failed to create order", zap.Error(err))
		return errorResponse(c, "Failed to create order")
	}
	return successResponse(c, "Order created successfully", order)
}

func (h *OrderHandler) markPaid(c echo.Context, body map[string]interface{}) error {
	var req models.NumericIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	tid := tenantID(c)

	moved, err := h.repos.Order.Transition(tid, req.ID,
		[]string{models.OrderStatusPending}, models.OrderStatusPaid,
		map[string]interface{}{"paid_at": time.Now()})
	if err != nil {
		h.logger.Error("Failed to mark order paid", zap.Uint("order_id", req.ID), zap.Error(err))
		return errorResponse(c, "Failed to update order")
	}
	if !moved {
		return errorResponse(c, "Order not found or not pending")
	}

	return h.deliverAndRespond(c, req.ID, "Order paid and delivered")
}

func (h *OrderHandler) redeliver(c echo.Context, body map[string]interface{}) error {
	var req models.NumericIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	order, err := h.repos.Order.FindByID(tenantID(c), req.ID)
	if err != nil {
		return errorResponse(c, "Order not found")
	}
	if order.Status != models.OrderStatusPaid {
		return errorResponse(c, "Only paid orders can be delivered")
	}
	return h.deliverAndRespond(c, req.ID, "Order delivered")
}

func (h *OrderHandler) deliverAndRespond(c echo.Context, id uint, okMsg string) error {
	tid := tenantID(c)
	msg := okMsg
	if err := h.deliver(c.Request().Context(), tid, id); err != nil {
		h.logger.Warn("Order delivery failed", zap.Uint("order_id", id), zap.Error(err))
		msg = "Order paid, delivery failed: " + err.Error()
	}
	order, _ := h.repos.Order.FindByID(tid, id)
	return successResponse(c, msg, order)
}

// deliver sends the product content to the customer and marks a paid order delivered.
func (h *OrderHandler) deliver(ctx context.Context, tenantID string, id uint) error {
	order, err := h.repos.Order.FindByID(tenantID, id)
	if err != nil {
		return err
	}
	product, err := h.repos.Product.FindByID(tenantID, order.ProductID)
	if err != nil {
		return fmt.Errorf("product %d: %w", order.ProductID, err)
	}
	customer, err := h.repos.Customer.FindByID(tenantID, order.CustomerID)
	if err != nil {
		return fmt.Errorf("customer %d: %w", order.CustomerID, err)
	}
	bot, err := h.repos.Bot.FindForTenant(tenantID, order.BotID)
	if err != nil {
		return fmt.Errorf("bot %s: %w", order.BotID, err)
	}

	text := fmt.Sprintf("<b>%s</b>\nOrder <code>%s</code>\n\n%s",
		html.EscapeString(order.ProductName), order.Code, html.EscapeString(product.Content))
	if _, err := telegram.NewBotAPI(h.opts.TelegramAPIURL, bot.Token).SendMessage(ctx, customer.TelegramID, text, nil); err != nil {
		if telegram.IsBlockedByUser(err) {
			_ = h.repos.Customer.MarkBlockedByChat(bot.ID, customer.TelegramID)
		}
		return fmt.Errorf("send content: %w", err)
	}

	if err := h.repos.Product.DecrementStock(tenantID, product.ID); err != nil {
		h.logger.Warn("Failed to decrement stock", zap.Uint("product_id", product.ID), zap.Error(err))
	}
	if _, err := h.repos.Order.Transition(tenantID, id,
		[]string{models.OrderStatusPaid}, models.OrderStatusDelivered,
		map[string]interface{}{"delivered_at": time.Now()}); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}

	h.logger.Info("Order delivered", zap.String("tenant_id", tenantID), zap.String("order", order.Code))
	return nil
}

func (h *OrderHandler) cancelOrder(c echo.Context, body map[string]interface{}) error {
	var req models.NumericIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	moved, err := h.repos.Order.Transition(tenantID(c), req.ID,
		[]string{models.OrderStatusPending}, models.OrderStatusCanceled, nil)
	if err != nil {
		return errorResponse(c, "Failed to update order")
	}
	if !moved {
		return errorResponse(c, "Order not found or not pending")
	}
	return successResponse(c, "Order canceled successfully", nil)
}

func (h *OrderHandler) stats(c echo.Context, body map[string]interface{}) error {
	tid := tenantID(c)
	botID := scopeBotID(c, getStringField(body, "bot_id"))

	stats, err := h.repos.Order.Stats(tid, repository.OrderFilter{BotID: botID})
	if err != nil {
		h.logger.Error("Failed to compute order stats", zap.Error(err))
		return errorResponse(c, "Failed to retrieve stats")
	}
	stats.Customers, _ = h.repos.Customer.CountByTenant(tid, botID)

	return successResponse(c, "Successful", map[string]interface{}{
		"bot_id": botID,
		"stats":  stats,
	})
}
