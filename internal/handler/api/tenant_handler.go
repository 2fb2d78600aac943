package api

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"botdesk/internal/models"
	"botdesk/internal/pkg/utils"
	"botdesk/internal/selection"
)

// TenantHandler handles operator actions on merchant accounts.
type TenantHandler struct {
	repos   *Repos
	manager *selection.Manager
	logger  *zap.Logger
}

func NewTenantHandler(repos *Repos, manager *selection.Manager, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{repos: repos, manager: manager, logger: logger}
}

// Handle routes tenant API requests.
// POST /admin/tenants
func (h *TenantHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return errorResponse(c, "Invalid request body")
	}

	switch action {
	case "tenants":
		return h.listTenants(c, body)
	case "tenant":
		return h.getTenant(c, body)
	case "tenant_add":
		return h.addTenant(c, body)
	case "tenant_edit":
		return h.editTenant(c, body)
	case "tenant_delete":
		return h.deleteTenant(c, body)
	default:
		return errorResponse(c, "Unknown action: "+action)
	}
}

func (h *TenantHandler) listTenants(c echo.Context, body map[string]interface{}) error {
	req, err := listParams(body)
	if err != nil {
		return errorResponse(c, err.Error())
	}

	tenants, total, err := h.repos.Tenant.FindAll(req.Limit, req.Page, req.Q)
	if err != nil {
		h.logger.Error("Failed to list tenants", zap.Error(err))
		return errorResponse(c, "Failed to retrieve tenants")
	}
	return successResponse(c, "Successful", paginatedNamedResponse("tenants", tenants, total, req.Page, req.Limit))
}

func (h *TenantHandler) getTenant(c echo.Context, body map[string]interface{}) error {
	var req models.StringIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	tenant, err := h.repos.Tenant.FindByID(req.ID)
	if err != nil {
		return errorResponse(c, "Tenant not found")
	}
	bots, _ := h.repos.Bot.FindByTenant(tenant.ID)
	customers, _ := h.repos.Customer.CountByTenant(tenant.ID, "")

	return successResponse(c, "Successful", map[string]interface{}{
		"tenant":          tenant,
		"bots":            botViews(bots),
		"count_customers": customers,
	})
}

func (h *TenantHandler) addTenant(c echo.Context, body map[string]interface{}) error {
	var req models.TenantAddRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}

	key := req.APIKey
	if key == "" {
		key = utils.RandomHex(24)
	}
	tenant := &models.Tenant{Name: req.Name, Status: models.TenantStatusActive}
	if err := h.repos.Tenant.Create(tenant, key); err != nil {
		h.logger.Error("Failed to create tenant", zap.Error(err))
		return errorResponse(c, "Failed to create tenant")
	}

	h.logger.Info("Tenant created", zap.String("tenant_id", tenant.ID))
	// the plaintext key is only ever returned here
	return successResponse(c, "Tenant created successfully", map[string]interface{}{
		"tenant":  tenant,
		"api_key": key,
	})
}

func (h *TenantHandler) editTenant(c echo.Context, body map[string]interface{}) error {
	var req models.TenantEditRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	if _, err := h.repos.Tenant.FindByID(req.ID); err != nil {
		return errorResponse(c, "Tenant not found")
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) == 0 && !req.RotateKey {
		return errorResponse(c, "No fields to update")
	}

	if len(updates) > 0 {
		if err := h.repos.Tenant.Update(req.ID, updates); err != nil {
			h.logger.Error("Failed to update tenant", zap.String("tenant_id", req.ID), zap.Error(err))
			return errorResponse(c, "Failed to update tenant")
		}
	}
	if req.Status != nil && *req.Status != models.TenantStatusActive {
		h.manager.CloseTenant(req.ID)
	}

	result := map[string]interface{}{}
	if req.RotateKey {
		key := utils.RandomHex(24)
		if err := h.repos.Tenant.RotateKey(req.ID, key); err != nil {
			h.logger.Error("Failed to rotate tenant key", zap.String("tenant_id", req.ID), zap.Error(err))
			return errorResponse(c, "Failed to rotate API key")
		}
		result["api_key"] = key
	}

	tenant, _ := h.repos.Tenant.FindByID(req.ID)
	result["tenant"] = tenant
	return successResponse(c, "Tenant updated successfully", result)
}

func (h *TenantHandler) deleteTenant(c echo.Context, body map[string]interface{}) error {
	var req models.StringIDRequest
	if err := bindBody(body, &req); err != nil {
		return errorResponse(c, err.Error())
	}
	if _, err := h.repos.Tenant.FindByID(req.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, "Tenant not found")
		}
		return errorResponse(c, "Failed to delete tenant")
	}

	if err := h.repos.Tenant.Delete(req.ID); err != nil {
		h.logger.Error("Failed to delete tenant", zap.String("tenant_id", req.ID), zap.Error(err))
		return errorResponse(c, "Failed to delete tenant")
	}
	h.manager.CloseTenant(req.ID)

	h.logger.Info("Tenant deleted", zap.String("tenant_id", req.ID))
	return successResponse(c, "Tenant deleted successfully", nil)
}
