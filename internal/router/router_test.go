package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"botdesk/internal/bot"
	"botdesk/internal/handler/api"
	"botdesk/internal/middleware"
	"botdesk/internal/models"
	"botdesk/internal/selection"
	"botdesk/internal/testdb"
)

const tenantKey = "tenant-key"

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	db := testdb.Open(t)
	repos := api.NewRepos(db)
	logger := zap.NewNop()

	if err := repos.Tenant.Create(&models.Tenant{Name: "Shop"}, tenantKey); err != nil {
		t.Fatal(err)
	}

	feed := selection.NewFeed(nil, logger)
	source := selection.SourceFunc(func(_ context.Context, tenantID string) ([]models.Bot, error) {
		return repos.Bot.FindByTenant(tenantID)
	})
	relay := bot.NewRelay(&bot.Repos{
		Bot:      repos.Bot,
		Product:  repos.Product,
		Customer: repos.Customer,
		Order:    repos.Order,
		Log:      repos.Log,
	}, "http://127.0.0.1:0", logger)

	e := echo.New()
	Setup(e, Deps{
		Repos:           repos,
		Manager:         selection.NewManager(source, selection.NewMemoryStore(), feed, logger),
		Feed:            feed,
		Relay:           relay,
		UpdateDeduper:   middleware.NewUpdateDeduper(nil, 0),
		AdminKey:        "admin-key",
		CheckTelegramIP: true,
	}, logger)
	return e
}

func serve(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Token", token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e := newTestServer(t)
	if rec := serve(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestTenantRoutesRequireToken(t *testing.T) {
	e := newTestServer(t)

	for _, path := range []string{"/api/bots", "/api/session", "/api/products", "/api/orders"} {
		if rec := serve(e, http.MethodGet, path, "", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d, want 401", path, rec.Code)
		}
		if rec := serve(e, http.MethodGet, path, "admin-key", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s with admin key = %d, want 401", path, rec.Code)
		}
	}
}

func TestSessionSnapshotOverHTTP(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, http.MethodGet, "/api/session", tenantKey, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res struct {
		Status bool                `json:"status"`
		Obj    selection.Snapshot `json:"obj"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Status || res.Obj.SelectedBot != nil || len(res.Obj.Bots) != 0 || res.Obj.IsLoading {
		t.Fatalf("snapshot = %+v", res)
	}
}

func TestAdminRoutes(t *testing.T) {
	e := newTestServer(t)

	if rec := serve(e, http.MethodPost, "/admin/tenants", tenantKey, `{"actions":"tenants"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("tenant key on admin route = %d, want 401", rec.Code)
	}
	rec := serve(e, http.MethodPost, "/admin/tenants", "admin-key", `{"actions":"tenants"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":true`) {
		t.Fatalf("admin tenants = %d %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookRoute(t *testing.T) {
	e := newTestServer(t)

	// httptest requests come from 192.0.2.1, outside Telegram's ranges.
	if rec := serve(e, http.MethodPost, "/webhook/some-bot", "", `{"update_id":1}`); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign ip status = %d, want 403", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhook/some-bot", strings.NewReader(`{"update_id":1}`))
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown bot status = %d, want 404", rec.Code)
	}
}
