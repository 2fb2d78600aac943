package bot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"botdesk/internal/models"
	"botdesk/internal/repository"
	"botdesk/internal/testdb"
)

type stubCall struct {
	Method string
	Body   map[string]interface{}
}

type stub struct {
	mu    sync.Mutex
	calls []stubCall
}

func (s *stub) record(method string, body map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, stubCall{Method: method, Body: body})
}

func (s *stub) last(method string) *stubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].Method == method {
			c := s.calls[i]
			return &c
		}
	}
	return nil
}

type relayFixture struct {
	relay *Relay
	repos *Repos
	stub  *stub
	bot   *models.Bot
	e     *echo.Echo
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	st := &stub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		st.record(method, body)

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "sendMessage":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":9001,"type":"private"}}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(srv.Close)

	db := testdb.Open(t)
	repos := &Repos{
		Bot:      repository.NewBotRepository(db),
		Product:  repository.NewProductRepository(db),
		Customer: repository.NewCustomerRepository(db),
		Order:    repository.NewOrderRepository(db),
		Log:      repository.NewLogRepository(db),
	}
	bot := &models.Bot{
		ID: "bot-1", TenantID: "t1", Name: "Shop", Username: "shop_bot",
		Token: "111:abc", WebhookSecret: "s3cret", Status: models.BotStatusActive,
	}
	if err := repos.Bot.Create(bot); err != nil {
		t.Fatal(err)
	}

	return &relayFixture{
		relay: NewRelay(repos, srv.URL, zap.NewNop()),
		repos: repos,
		stub:  st,
		bot:   bot,
		e:     echo.New(),
	}
}

func (f *relayFixture) post(t *testing.T, botID, secret string, update interface{}) int {
	t.Helper()
	raw, _ := json.Marshal(update)
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+botID, bytes.NewReader(raw))
	req.Header.Set(SecretHeader, secret)
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	c.SetParamNames("botID")
	c.SetParamValues(botID)
	if err := f.relay.HandleWebhook(c); err != nil {
		t.Fatal(err)
	}
	return rec.Code
}

var ann = map[string]interface{}{"id": 9001, "is_bot": false, "first_name": "Ann", "username": "ann"}

func startUpdate(id int) map[string]interface{} {
	return map[string]interface{}{
		"update_id": id,
		"message": map[string]interface{}{
			"message_id": id,
			"date":       0,
			"text":       "/start",
			"from":       ann,
			"chat":       map[string]interface{}{"id": 9001, "type": "private"},
		},
	}
}

func TestRelayStartSendsCatalog(t *testing.T) {
	f := newRelayFixture(t)
	product := &models.Product{TenantID: "t1", Name: "Guide", Price: 500, Currency: "USD", Stock: -1, Active: true}
	if err := f.repos.Product.Create(product); err != nil {
		t.Fatal(err)
	}

	if code := f.post(t, f.bot.ID, "s3cret", startUpdate(1)); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	sent := f.stub.last("sendMessage")
	if sent == nil {
		t.Fatalf("no message was sent")
	}
	if !strings.Contains(fmt.Sprint(sent.Body["text"]), "Welcome to <b>Shop</b>") {
		t.Errorf("text = %v", sent.Body["text"])
	}
	if markup := fmt.Sprint(sent.Body["reply_markup"]); !strings.Contains(markup, "Guide") || !strings.Contains(markup, "buy") {
		t.Errorf("reply_markup = %s", markup)
	}

	customer, err := f.repos.Customer.FindByTelegramID(f.bot.ID, 9001)
	if err != nil || customer.FirstName != "Ann" || customer.TenantID != "t1" {
		t.Fatalf("customer = %+v, %v", customer, err)
	}

	events, _ := f.repos.Log.RecentWebhookEvents("t1", f.bot.ID, 10)
	if len(events) != 1 || events[0].Kind != "message" || events[0].ChatID != 9001 {
		t.Fatalf("events = %+v", events)
	}
}

func TestRelayBuyCreatesPendingOrder(t *testing.T) {
	f := newRelayFixture(t)
	product := &models.Product{TenantID: "t1", Name: "Guide", Price: 500, Currency: "USD", Stock: 3, Active: true}
	if err := f.repos.Product.Create(product); err != nil {
		t.Fatal(err)
	}
	f.post(t, f.bot.ID, "s3cret", startUpdate(1))

	callback := map[string]interface{}{
		"update_id": 2,
		"callback_query": map[string]interface{}{
			"id":      "cb-1",
			"from":    ann,
			"message": map[string]interface{}{"message_id": 5, "date": 0, "chat": map[string]interface{}{"id": 9001, "type": "private"}},
			"data":    fmt.Sprintf("\f%s|%d", buyUnique, product.ID),
		},
	}
	if code := f.post(t, f.bot.ID, "s3cret", callback); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	orders, total, err := f.repos.Order.FindAll("t1", repository.OrderFilter{BotID: f.bot.ID}, 10, 1)
	if err != nil || total != 1 {
		t.Fatalf("orders = %d, %v", total, err)
	}
	if o := orders[0]; o.Status != models.OrderStatusPending || o.ProductID != product.ID || o.Amount != 500 {
		t.Fatalf("order = %+v", o)
	}
	if f.stub.last("answerCallbackQuery") == nil {
		t.Errorf("callback was not answered")
	}
	if sent := f.stub.last("sendMessage"); sent == nil || !strings.Contains(fmt.Sprint(sent.Body["text"]), orders[0].Code) {
		t.Errorf("order confirmation not sent: %+v", sent)
	}
}

func TestRelayRejectsBadRequests(t *testing.T) {
	f := newRelayFixture(t)

	if code := f.post(t, "missing", "s3cret", startUpdate(1)); code != http.StatusNotFound {
		t.Errorf("unknown bot status = %d", code)
	}
	if code := f.post(t, f.bot.ID, "wrong", startUpdate(1)); code != http.StatusUnauthorized {
		t.Errorf("bad secret status = %d", code)
	}
	if f.stub.last("sendMessage") != nil {
		t.Errorf("rejected update produced a reply")
	}
}

func TestRelayIgnoresBlockedCustomersAndDisabledBots(t *testing.T) {
	f := newRelayFixture(t)
	blocked := &models.Customer{TenantID: "t1", BotID: f.bot.ID, TelegramID: 9001}
	if err := f.repos.Customer.Upsert(blocked); err != nil {
		t.Fatal(err)
	}
	if err := f.repos.Customer.SetBlocked("t1", blocked.ID, true); err != nil {
		t.Fatal(err)
	}

	f.post(t, f.bot.ID, "s3cret", startUpdate(1))
	if f.stub.last("sendMessage") != nil {
		t.Fatalf("blocked customer got a reply")
	}

	if err := f.repos.Bot.Update("t1", f.bot.ID, map[string]interface{}{"status": models.BotStatusDisabled}); err != nil {
		t.Fatal(err)
	}
	if code := f.post(t, f.bot.ID, "s3cret", startUpdate(2)); code != http.StatusOK {
		t.Fatalf("disabled bot status = %d", code)
	}
	events, _ := f.repos.Log.RecentWebhookEvents("t1", f.bot.ID, 10)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"xé", 2, "x"},
		{"xéa", 3, "xé"},
		{"日本", 4, "日"},
		{"日本", 2, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestRelayKeepsLongTextValidUTF8(t *testing.T) {
	f := newRelayFixture(t)

	text := "x" + strings.Repeat("é", 600)
	upd := map[string]interface{}{
		"update_id": 7,
		"message": map[string]interface{}{
			"message_id": 7,
			"date":       0,
			"text":       text,
			"from":       ann,
			"chat":       map[string]interface{}{"id": 9001, "type": "private"},
		},
	}
	if code := f.post(t, f.bot.ID, "s3cret", upd); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	events, err := f.repos.Log.RecentWebhookEvents("t1", f.bot.ID, 1)
	if err != nil || len(events) != 1 {
		t.Fatalf("events = %v, %v", events, err)
	}
	got := events[0].Text
	if !utf8.ValidString(got) || len(got) != 999 || !strings.HasPrefix(text, got) {
		t.Fatalf("stored text: valid=%v len=%d", utf8.ValidString(got), len(got))
	}
}

func TestRelayConcurrentUpdatesForOneBot(t *testing.T) {
	f := newRelayFixture(t)

	var wg sync.WaitGroup
	codes := make(chan int, 8)
	for i := 1; i <= 8; i++ {
		raw, _ := json.Marshal(startUpdate(i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/webhook/"+f.bot.ID, bytes.NewReader(raw))
			req.Header.Set(SecretHeader, "s3cret")
			rec := httptest.NewRecorder()
			c := f.e.NewContext(req, rec)
			c.SetParamNames("botID")
			c.SetParamValues(f.bot.ID)
			_ = f.relay.HandleWebhook(c)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
	}
	events, _ := f.repos.Log.RecentWebhookEvents("t1", f.bot.ID, 20)
	if len(events) != 8 {
		t.Fatalf("events = %d, want 8", len(events))
	}
}
