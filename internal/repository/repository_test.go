package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"botdesk/internal/models"
	"botdesk/internal/repository"
	"botdesk/internal/testdb"
)

func newTenant(t *testing.T, repo *repository.TenantRepository, name, key string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: name}
	if err := repo.Create(tenant, key); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant
}

func TestTenantRepositoryAPIKey(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewTenantRepository(db)

	tenant := newTenant(t, repo, "Acme", "acme-key-0123456789")
	if tenant.ID == "" {
		t.Fatal("Create() should assign an id")
	}

	found, err := repo.FindByAPIKey("acme-key-0123456789")
	if err != nil || found.ID != tenant.ID {
		t.Fatalf("FindByAPIKey() = %v, %v", found, err)
	}

	if err := repo.RotateKey(tenant.ID, "rotated-key-0123456789"); err != nil {
		t.Fatalf("RotateKey() error = %v", err)
	}
	if _, err := repo.FindByAPIKey("acme-key-0123456789"); !repository.IsNotFound(err) {
		t.Errorf("old key should no longer resolve, err = %v", err)
	}
	if _, err := repo.FindByAPIKey("rotated-key-0123456789"); err != nil {
		t.Errorf("rotated key should resolve, err = %v", err)
	}
}

func TestBotRepositoryNaturalOrderAndPrimary(t *testing.T) {
	db := testdb.Open(t)
	tenants := repository.NewTenantRepository(db)
	bots := repository.NewBotRepository(db)
	tenant := newTenant(t, tenants, "Acme", "acme-key-0123456789")

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"c", "a", "b"} {
		bot := &models.Bot{ID: id, TenantID: tenant.ID, Name: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := bots.Create(bot); err != nil {
			t.Fatalf("create bot %s: %v", id, err)
		}
	}

	list, err := bots.FindByTenant(tenant.ID)
	if err != nil {
		t.Fatalf("FindByTenant() error = %v", err)
	}
	var order []string
	for _, b := range list {
		order = append(order, b.ID)
	}
	if len(order) != 3 || order[0] != "c" || order[1] != "a" || order[2] != "b" {
		t.Fatalf("natural order = %v, want [c a b]", order)
	}

	if err := bots.SetPrimary(tenant.ID, "a"); err != nil {
		t.Fatalf("SetPrimary(a) error = %v", err)
	}
	if err := bots.SetPrimary(tenant.ID, "b"); err != nil {
		t.Fatalf("SetPrimary(b) error = %v", err)
	}
	list, _ = bots.FindByTenant(tenant.ID)
	primaries := 0
	for _, b := range list {
		if b.IsPrimary {
			primaries++
			if b.ID != "b" {
				t.Errorf("primary = %s, want b", b.ID)
			}
		}
	}
	if primaries != 1 {
		t.Errorf("primary count = %d, want 1", primaries)
	}

	if err := bots.SetPrimary(tenant.ID, "missing"); !repository.IsNotFound(err) {
		t.Errorf("SetPrimary(missing) error = %v, want not found", err)
	}
	if err := bots.Delete("other-tenant", "a"); !repository.IsNotFound(err) {
		t.Errorf("deleting another tenant's bot should fail, err = %v", err)
	}
}

func TestCustomerRepositoryUpsert(t *testing.T) {
	db := testdb.Open(t)
	customers := repository.NewCustomerRepository(db)

	first := &models.Customer{TenantID: "t1", BotID: "b1", TelegramID: 1001, Username: "alice"}
	if err := customers.Upsert(first); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	again := &models.Customer{TenantID: "t1", BotID: "b1", TelegramID: 1001, Username: "alice_new"}
	if err := customers.Upsert(again); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("upsert created a new row: %d != %d", again.ID, first.ID)
	}
	if again.Username != "alice_new" {
		t.Errorf("username = %q, want alice_new", again.Username)
	}

	if err := customers.Upsert(&models.Customer{TenantID: "t1", BotID: "b1", TelegramID: 1002}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := customers.SetBlocked("t1", first.ID, true); err != nil {
		t.Fatalf("SetBlocked() error = %v", err)
	}
	ids, err := customers.ChatIDsForBot("t1", "b1")
	if err != nil {
		t.Fatalf("ChatIDsForBot() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != 1002 {
		t.Errorf("reachable chats = %v, want [1002]", ids)
	}
}

func TestOrderRepositoryTransitionsAndStats(t *testing.T) {
	db := testdb.Open(t)
	orders := repository.NewOrderRepository(db)

	mk := func(code, status string, amount int64) *models.Order {
		o := &models.Order{Code: code, TenantID: "t1", BotID: "b1", Amount: amount, Status: status}
		if err := orders.Create(o); err != nil {
			t.Fatalf("create order: %v", err)
		}
		return o
	}
	pending := mk("o1", models.OrderStatusPending, 500)
	mk("o2", models.OrderStatusDelivered, 1000)
	mk("o3", models.OrderStatusCanceled, 700)

	ok, err := orders.Transition("t1", pending.ID, []string{models.OrderStatusPending}, models.OrderStatusPaid, nil)
	if err != nil || !ok {
		t.Fatalf("Transition(pending->paid) = %v, %v", ok, err)
	}
	ok, err = orders.Transition("t1", pending.ID, []string{models.OrderStatusPending}, models.OrderStatusPaid, nil)
	if err != nil || ok {
		t.Fatalf("second Transition() = %v, %v; want false, nil", ok, err)
	}

	stats, err := orders.Stats("t1", repository.OrderFilter{})
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.Revenue != 1500 {
		t.Errorf("revenue = %d, want 1500", stats.Revenue)
	}
	if stats.ByStatus[models.OrderStatusCanceled] != 1 {
		t.Errorf("canceled = %d, want 1", stats.ByStatus[models.OrderStatusCanceled])
	}
}

func TestOrderRepositoryExpirePending(t *testing.T) {
	db := testdb.Open(t)
	orders := repository.NewOrderRepository(db)

	old := &models.Order{Code: "old", TenantID: "t1", Status: models.OrderStatusPending, CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &models.Order{Code: "fresh", TenantID: "t1", Status: models.OrderStatusPending}
	for _, o := range []*models.Order{old, fresh} {
		if err := orders.Create(o); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := orders.ExpirePending(time.Now().Add(-24 * time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("ExpirePending() = %d, %v; want 1, nil", n, err)
	}
	got, _ := orders.FindByID("t1", old.ID)
	if got.Status != models.OrderStatusExpired {
		t.Errorf("old order status = %s, want expired", got.Status)
	}
}

func TestOrderRepositoryCreateFor(t *testing.T) {
	db := testdb.Open(t)
	orders := repository.NewOrderRepository(db)
	customer := &models.Customer{ID: 7, TenantID: "t1", BotID: "b1"}

	tests := []struct {
		name    string
		product models.Product
		wantErr bool
	}{
		{"shared product", models.Product{ID: 1, Name: "Guide", Price: 500, Currency: "USD", Stock: -1, Active: true}, false},
		{"same bot", models.Product{ID: 2, BotID: "b1", Stock: 3, Active: true}, false},
		{"other bot", models.Product{ID: 3, BotID: "b2", Stock: -1, Active: true}, true},
		{"sold out", models.Product{ID: 4, Stock: 0, Active: true}, true},
		{"inactive", models.Product{ID: 5, Stock: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := orders.CreateFor(customer, &tt.product, "")
			if tt.wantErr {
				if !errors.Is(err, repository.ErrProductUnavailable) {
					t.Fatalf("CreateFor() error = %v, want ErrProductUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateFor() error = %v", err)
			}
			if order.Status != models.OrderStatusPending || order.Amount != tt.product.Price ||
				order.BotID != "b1" || order.CustomerID != 7 || order.Code == "" {
				t.Fatalf("unexpected order %+v", order)
			}
		})
	}
}

func TestBroadcastRepositoryQueue(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewBroadcastRepository(db)

	b := &models.Broadcast{TenantID: "t1", BotID: "b1", Message: "hi"}
	if err := repo.CreateWithItems(b, []int64{1, 2, 2, 0, 3}); err != nil {
		t.Fatalf("CreateWithItems() error = %v", err)
	}
	if b.TotalItems != 3 {
		t.Fatalf("total items = %d, want 3 (deduplicated)", b.TotalItems)
	}

	next, err := repo.FindNextActive()
	if err != nil || next.ID != b.ID {
		t.Fatalf("FindNextActive() = %v, %v", next, err)
	}

	items, _ := repo.ListPendingItems(b.ID, 2)
	if len(items) != 2 {
		t.Fatalf("pending batch = %d, want 2", len(items))
	}
	_ = repo.MarkItemDone(b.ID, items[0].ID)
	_ = repo.MarkItemFailed(b.ID, items[1].ID, "blocked")
	// Marking twice must not double count.
	_ = repo.MarkItemDone(b.ID, items[0].ID)

	got, _ := repo.FindByID("t1", b.ID)
	if got.ProcessedItems != 2 || got.FailedItems != 1 {
		t.Errorf("counters = processed %d failed %d, want 2 and 1", got.ProcessedItems, got.FailedItems)
	}
	pending, _ := repo.CountPendingItems(b.ID)
	if pending != 1 {
		t.Errorf("pending = %d, want 1", pending)
	}

	ok, err := repo.Cancel("t1", b.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel() = %v, %v", ok, err)
	}
	if _, err := repo.FindNextActive(); !repository.IsNotFound(err) {
		t.Errorf("canceled broadcast should not be picked, err = %v", err)
	}
}

func TestKeyValueRepository(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewKeyValueRepository(db)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "selected_bot_t1"); !repository.IsNotFound(err) {
		t.Fatalf("Get(missing) error = %v, want not found", err)
	}
	if err := repo.Set(ctx, "selected_bot_t1", "a"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, "selected_bot_t1", "b"); err != nil {
		t.Fatalf("overwrite Set() error = %v", err)
	}
	v, err := repo.Get(ctx, "selected_bot_t1")
	if err != nil || v != "b" {
		t.Errorf("Get() = %q, %v; want b", v, err)
	}
}

func TestTenantDeleteRemovesOwnedRows(t *testing.T) {
	db := testdb.Open(t)
	tenants := repository.NewTenantRepository(db)
	bots := repository.NewBotRepository(db)
	broadcasts := repository.NewBroadcastRepository(db)

	tenant := newTenant(t, tenants, "Acme", "acme-key-0123456789")
	_ = bots.Create(&models.Bot{ID: "x", TenantID: tenant.ID})
	_ = broadcasts.CreateWithItems(&models.Broadcast{TenantID: tenant.ID, BotID: "x"}, []int64{1})

	if err := tenants.Delete(tenant.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if list, _ := bots.FindByTenant(tenant.ID); len(list) != 0 {
		t.Errorf("bots left after tenant delete: %d", len(list))
	}
	var items int64
	db.Model(&models.BroadcastItem{}).Count(&items)
	if items != 0 {
		t.Errorf("broadcast items left: %d", items)
	}
}
