package cron

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"botdesk/internal/config"
	"botdesk/internal/models"
	"botdesk/internal/repository"
	"botdesk/internal/selection"
	"botdesk/internal/testdb"
)

func newTestScheduler(t *testing.T, apiURL string) (*Scheduler, *CronRepos) {
	t.Helper()
	db := testdb.Open(t)
	repos := &CronRepos{
		Bot:       repository.NewBotRepository(db),
		Customer:  repository.NewCustomerRepository(db),
		Order:     repository.NewOrderRepository(db),
		Broadcast: repository.NewBroadcastRepository(db),
		Log:       repository.NewLogRepository(db),
	}
	cfg := &config.Config{
		Telegram:  config.TelegramConfig{APIURL: apiURL, EventRetention: 24 * time.Hour},
		Selection: config.SelectionConfig{SessionIdle: time.Minute},
		Orders:    config.OrdersConfig{PendingTTL: time.Hour},
	}
	return New(cfg, repos, nil, zap.NewNop()), repos
}

func TestProcessBroadcasts(t *testing.T) {
	var mu sync.Mutex
	var delivered []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ChatID int64 `json:"chat_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body.ChatID == 12 {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
			return
		}
		mu.Lock()
		delivered = append(delivered, body.ChatID)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	s, repos := newTestScheduler(t, srv.URL)
	if err := repos.Bot.Create(&models.Bot{ID: "b1", TenantID: "t1", Token: "1:x", Status: models.BotStatusActive}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []int64{10, 11, 12} {
		if err := repos.Customer.Upsert(&models.Customer{TenantID: "t1", BotID: "b1", TelegramID: id}); err != nil {
			t.Fatal(err)
		}
	}
	b := &models.Broadcast{TenantID: "t1", BotID: "b1", Message: "Sale"}
	if err := repos.Broadcast.CreateWithItems(b, []int64{10, 11, 12}); err != nil {
		t.Fatal(err)
	}

	s.processBroadcasts()

	got, err := repos.Broadcast.FindByID("t1", b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BroadcastStatusDone || got.ProcessedItems != 3 || got.FailedItems != 1 {
		t.Fatalf("broadcast = %+v", got)
	}
	if len(delivered) != 2 {
		t.Fatalf("delivered = %v, want 2 chats", delivered)
	}
	ids, _ := repos.Customer.ChatIDsForBot("t1", "b1")
	if len(ids) != 2 {
		t.Fatalf("blocked customer still reachable: %v", ids)
	}

	// nothing left to do
	s.processBroadcasts()
}

func TestProcessBroadcastsDisabledBot(t *testing.T) {
	s, repos := newTestScheduler(t, "http://127.0.0.1:0")
	if err := repos.Bot.Create(&models.Bot{ID: "b1", TenantID: "t1", Token: "1:x", Status: models.BotStatusDisabled}); err != nil {
		t.Fatal(err)
	}
	b := &models.Broadcast{TenantID: "t1", BotID: "b1", Message: "Sale"}
	if err := repos.Broadcast.CreateWithItems(b, []int64{10}); err != nil {
		t.Fatal(err)
	}

	s.processBroadcasts()

	got, _ := repos.Broadcast.FindByID("t1", b.ID)
	if got.Status != models.BroadcastStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestExpirePendingOrders(t *testing.T) {
	s, repos := newTestScheduler(t, "")
	old := &models.Order{Code: "old", TenantID: "t1", Status: models.OrderStatusPending, CreatedAt: time.Now().Add(-2 * time.Hour)}
	if err := repos.Order.Create(old); err != nil {
		t.Fatal(err)
	}

	s.expirePendingOrders()

	got, _ := repos.Order.FindByID("t1", old.ID)
	if got.Status != models.OrderStatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
}

func TestPruneIdleSessions(t *testing.T) {
	s, _ := newTestScheduler(t, "")
	source := selection.SourceFunc(func(context.Context, string) ([]models.Bot, error) { return nil, nil })
	s.manager = selection.NewManager(source, selection.NewMemoryStore(), nil, zap.NewNop())
	s.manager.Open(context.Background(), "t1", "s1")

	s.cfg.Selection.SessionIdle = -time.Second
	s.pruneIdleSessions()
	if s.manager.Len() != 0 {
		t.Fatalf("sessions = %d, want 0", s.manager.Len())
	}
}

func TestRecoverFromPanic(t *testing.T) {
	s, _ := newTestScheduler(t, "")
	s.repos = nil // every job touching repos panics

	s.expirePendingOrders()
	s.processBroadcasts()
}
