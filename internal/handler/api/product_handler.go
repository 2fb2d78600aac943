package api

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"botdesk/internal/models"
	"botdesk/internal/pkg/utils"
)

const defaultCurrency = "USD"

// ProductHandler handles all product API actions.
type ProductHandler struct {
	repos  *Repos
	logger *zap.Logger
}

func NewProductHandler(repos *Repos, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{repos: repos, logger: logger}
}

// Handle routes product API requests.
// POST /api/products
func (h *ProductHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "products":
		return h.listProducts(c, body)
	case "product":
		return h.getProduct(c, body)
	case "product_add":
		return h.addProduct(c, body)
	case "product_edit":
		return h.editProduct(c, body)
	case "product_delete":
		return h.deleteProduct(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *ProductHandler) listProducts(c echo.Context, body map[string]interface{}) error {
	req, err := listParams(body)
	if err != nil {
		return errorResponse(c, err.Error())
	}
	botID := scopeBotID(c, req.BotID)

	products, total, err := h.repos.Product.FindAll(tenantID(c), botID, req.Limit, req.Page, req.Q)
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		return errorResponse(c, "Failed to retrieve products")
	}

	resp := paginatedNamedResponse("products", products, total, req.Page, req.Limit)
	resp["bot_id"] = botID
	return successResponse(c, "Successful", resp)
}

func (h *ProductHandler) getProduct(c echo.Context, body map[string]interface{}) error {
	var req models.NumericIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	product, err := h.repos.Product.FindByID(tenantID(c), req.ID)
	if err != nil {
		return errorResponse(c, "Product not found")
	}

	// Content is hidden from listings but the owner may read it here.
	return successResponse(c, "Successful", map[string]interface{}{
		"product": product,
		"content": product.Content,
	})
}

func (h *ProductHandler) addProduct(c echo.Context, body map[string]interface{}) error {
	var req models.ProductAddRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	tid := tenantID(c)

	if req.BotID != "" {
		if _, err := h.repos.Bot.FindForTenant(tid, req.BotID); err != nil {
			return errorResponse(c, "Bot not found")
		}
	}

	stock := -1
	if req.Stock != nil {
		stock = *req.Stock
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	product := &models.Product{
		TenantID:    tid,
		BotID:       req.BotID,
		Code:        utils.RandomCode(8),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    currency,
		Content:     req.Content,
		Stock:       stock,
		Active:      true,
	}
	if err := h.repos.Product.Create(product); err != nil {
		h.logger.Error("Failed to create product", zap.Error(err))
		return errorResponse(c, "Failed to create product")
	}

	return successResponse(c, "Product created successfully", product)
}

func (h *ProductHandler) editProduct(c echo.Context, body map[string]interface{}) error {
	var req models.ProductEditRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	tid := tenantID(c)

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.Currency != nil {
		updates["currency"] = strings.ToUpper(*req.Currency)
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.Stock != nil {
		updates["stock"] = *req.Stock
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) == 0 {
		return errorResponse(c, "No fields to update")
	}
	if _, err := h.repos.Product.FindByID(tid, req.ID); err != nil {
		return errorResponse(c, "Product not found")
	}

	if err := h.repos.Product.Update(tid, req.ID, updates); err != nil {
		h.logger.Error("Failed to update product", zap.Uint("product_id", req.ID), zap.Error(err))
		return errorResponse(c, "Failed to update product")
	}
	return successResponse(c, "Product updated successfully", nil)
}

func (h *ProductHandler) deleteProduct(c echo.Context, body map[string]interface{}) error {
	var req models.NumericIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	if err := h.repos.Product.Delete(tenantID(c), req.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Product not found")
		}
		return errorResponse(c, "Failed to delete product")
	}
	return successResponse(c, "Product deleted successfully", nil)
}
