package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"botdesk/internal/middleware"
	"botdesk/internal/models"
	"botdesk/internal/selection"
	"botdesk/internal/testdb"
)

const tenantKeyPlain = "tenant-key-0123456789abcdef"

type sentCall struct {
	Token  string
	Method string
	Body   map[string]interface{}
}

// telegramStub answers Bot API calls; tokens whose secret starts with "bad" are rejected.
type telegramStub struct {
	mu    sync.Mutex
	calls []sentCall
	srv   *httptest.Server
}

func newTelegramStub(t *testing.T) *telegramStub {
	t.Helper()
	stub := &telegramStub{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/bot")
		i := strings.LastIndex(path, "/")
		token, method := path[:i], path[i+1:]

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		stub.mu.Lock()
		stub.calls = append(stub.calls, sentCall{Token: token, Method: method, Body: body})
		stub.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(token, ":bad") {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
			return
		}
		switch method {
		case "getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Shop","username":"shop_bot"}}`))
		case "sendMessage":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func (s *telegramStub) callsTo(method string) []sentCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentCall
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

type apiResult struct {
	Status bool            `json:"status"`
	Msg    string          `json:"msg"`
	Obj    json.RawMessage `json:"obj"`
}

type harness struct {
	t       *testing.T
	e       *echo.Echo
	repos   *Repos
	manager *selection.Manager
	tg      *telegramStub
	tenant  *models.Tenant
	fetches *atomic.Int64

	bots, session, products, customers, orders, broadcasts, tenants echo.HandlerFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testdb.Open(t)
	repos := NewRepos(db)
	logger := zap.NewNop()
	tg := newTelegramStub(t)

	tenant := &models.Tenant{Name: "Shop"}
	if err := repos.Tenant.Create(tenant, tenantKeyPlain); err != nil {
		t.Fatal(err)
	}

	feed := selection.NewFeed(nil, logger)
	fetches := new(atomic.Int64)
	source := selection.SourceFunc(func(_ context.Context, tenantID string) ([]models.Bot, error) {
		fetches.Add(1)
		return repos.Bot.FindByTenant(tenantID)
	})
	manager := selection.NewManager(source, selection.NewMemoryStore(), feed, logger)
	opts := Options{TelegramAPIURL: tg.srv.URL, WebhookBaseURL: "https://dash.example.com"}

	scoped := func(h echo.HandlerFunc) echo.HandlerFunc {
		return middleware.TenantAuth(repos.Tenant)(middleware.TenantSession(manager)(h))
	}

	return &harness{
		t:          t,
		e:          echo.New(),
		repos:      repos,
		manager:    manager,
		tg:         tg,
		tenant:     tenant,
		fetches:    fetches,
		bots:       scoped(NewBotHandler(repos, feed, opts, logger).Handle),
		session:    scoped(NewSessionHandler(logger).Handle),
		products:   scoped(NewProductHandler(repos, logger).Handle),
		customers:  scoped(NewCustomerHandler(repos, logger).Handle),
		orders:     scoped(NewOrderHandler(repos, opts, logger).Handle),
		broadcasts: scoped(NewBroadcastHandler(repos, logger).Handle),
		tenants:    middleware.AdminAuth("admin-key")(NewTenantHandler(repos, manager, logger).Handle),
	}
}

func (h *harness) callAs(handler echo.HandlerFunc, token, session string, body map[string]interface{}) apiResult {
	h.t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Token", token)
	if session != "" {
		req.Header.Set("Session", session)
	}
	rec := httptest.NewRecorder()
	if err := handler(h.e.NewContext(req, rec)); err != nil {
		h.t.Fatalf("handler error: %v", err)
	}

	var res apiResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		h.t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return res
}

func (h *harness) call(handler echo.HandlerFunc, body map[string]interface{}) apiResult {
	h.t.Helper()
	return h.callAs(handler, tenantKeyPlain, "", body)
}

func (h *harness) mustOK(handler echo.HandlerFunc, body map[string]interface{}) apiResult {
	h.t.Helper()
	res := h.call(handler, body)
	if !res.Status {
		h.t.Fatalf("%v failed: %s", body["actions"], res.Msg)
	}
	return res
}

func (h *harness) addBot(token, name string) botView {
	h.t.Helper()
	res := h.mustOK(h.bots, map[string]interface{}{"actions": "bot_add", "token": token, "name": name})
	var bot botView
	if err := json.Unmarshal(res.Obj, &bot); err != nil {
		h.t.Fatal(err)
	}
	return bot
}

func (h *harness) snapshot() selection.Snapshot {
	h.t.Helper()
	res := h.mustOK(h.session, map[string]interface{}{"actions": "session"})
	var snap selection.Snapshot
	if err := json.Unmarshal(res.Obj, &snap); err != nil {
		h.t.Fatal(err)
	}
	return snap
}

func decode(t *testing.T, raw json.RawMessage, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}
