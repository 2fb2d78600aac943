package api

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"botdesk/internal/models"
	"botdesk/internal/repository"
)

// CustomerHandler handles customer API actions.
type CustomerHandler struct {
	repos  *Repos
	logger *zap.Logger
}

func NewCustomerHandler(repos *Repos, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{repos: repos, logger: logger}
}

// Handle routes customer API requests.
// POST /api/customers
func (h *CustomerHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "customers":
		return h.listCustomers(c, body)
	case "customer":
		return h.getCustomer(c, body)
	case "customer_edit":
		return h.editCustomer(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *CustomerHandler) listCustomers(c echo.Context, body map[string]interface{}) error {
	req, err := listParams(body)
	if err != nil {
		return errorResponse(c, err.Error())
	}
	botID := scopeBotID(c, req.BotID)

	customers, total, err := h.repos.Customer.FindAll(tenantID(c), botID, req.Limit, req.Page, req.Q)
	if err != nil {
		h.logger.Error("Failed to list customers", zap.Error(err))
		return errorResponse(c, "Failed to retrieve customers")
	}

	resp := paginatedNamedResponse("customers", customers, total, req.Page, req.Limit)
	resp["bot_id"] = botID
	return successResponse(c, "Successful", resp)
}

func (h *CustomerHandler) getCustomer(c echo.Context, body map[string]interface{}) error {
	var req models.NumericIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	tid := tenantID(c)

	customer, err := h.repos.Customer.FindByID(tid, req.ID)
	if err != nil {
		return errorResponse(c, "Customer not found")
	}
	orders, total, _ := h.repos.Order.FindAll(tid, repository.OrderFilter{CustomerID: customer.ID}, 20, 1)

	return successResponse(c, "Successful", map[string]interface{}{
		"customer":     customer,
		"orders":       orders,
		"count_orders": total,
	})
}

func (h *CustomerHandler) editCustomer(c echo.Context, body map[string]interface{}) error {
	var req models.CustomerEditRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	if err := h.repos.Customer.SetBlocked(tenantID(c), req.ID, *req.Blocked); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Customer not found")
		}
		return errorResponse(c, "Failed to update customer")
	}
	return successResponse(c, "Customer updated successfully", nil)
}
