package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"botdesk/internal/middleware"
	"botdesk/internal/models"
	"botdesk/internal/repository"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Response helpers; every endpoint answers with the same envelope.
func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: false,
		Msg:    msg,
		Obj:    nil,
	})
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		limit = 50
	}
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

// paginatedNamedResponse returns list payloads shaped
// { "<key>": [...], "pagination": {...} }.
func paginatedNamedResponse(key string, data interface{}, total int64, page, limit int) map[string]interface{} {
	return map[string]interface{}{
		key: data,
		"pagination": map[string]interface{}{
			"total_pages":  totalPages(total, limit),
			"current_page": page,
			"per_page":     limit,
			"total_record": total,
		},
	}
}

// parseBodyAction extracts the "actions" field from the request body.
// Every API request routes on it.
func parseBodyAction(c echo.Context) (string, map[string]interface{}, error) {
	body := make(map[string]interface{})
	if c.Request().ContentLength != 0 {
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
			return "", nil, err
		}
	}
	// GET requests may route via query string
	for key, values := range c.QueryParams() {
		if _, ok := body[key]; !ok && len(values) > 0 {
			body[key] = values[0]
		}
	}
	action, _ := body["actions"].(string)
	c.Set(middleware.ActionKey, action) // for logging middleware
	return action, body, nil
}

// bindBody decodes the action body into a typed request and validates it.
func bindBody(body map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid request fields: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s is invalid (%s)", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

// getStringField gets a string field from the body map.
func getStringField(body map[string]interface{}, key string) string {
	if v, ok := body[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		// Handle numbers that should be strings
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.0f", f)
		}
	}
	return ""
}

// getIntField gets an int field from the body map.
func getIntField(body map[string]interface{}, key string, defaultVal int) int {
	if v, ok := body[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case string:
			if i, err := strconv.Atoi(t); err == nil {
				return i
			}
		}
	}
	return defaultVal
}

func listParams(body map[string]interface{}) (models.ListRequest, error) {
	var req models.ListRequest
	if err := bindBody(body, &req); err != nil {
		return req, err
	}
	if req.Limit == 0 {
		req.Limit = 50
	}
	if req.Page == 0 {
		req.Page = 1
	}
	return req, nil
}

func tenantID(c echo.Context) string {
	if t := middleware.TenantFrom(c); t != nil {
		return t.ID
	}
	return ""
}

// Repos bundles all repositories needed by API handlers.
type Repos struct {
	Tenant    *repository.TenantRepository
	Bot       *repository.BotRepository
	Product   *repository.ProductRepository
	Customer  *repository.CustomerRepository
	Order     *repository.OrderRepository
	Broadcast *repository.BroadcastRepository
	Log       *repository.LogRepository
}

// NewRepos builds every repository over one database handle.
func NewRepos(db *gorm.DB) *Repos {
	return &Repos{
		Tenant:    repository.NewTenantRepository(db),
		Bot:       repository.NewBotRepository(db),
		Product:   repository.NewProductRepository(db),
		Customer:  repository.NewCustomerRepository(db),
		Order:     repository.NewOrderRepository(db),
		Broadcast: repository.NewBroadcastRepository(db),
		Log:       repository.NewLogRepository(db),
	}
}
