package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"botdesk/internal/models"
	"botdesk/internal/pkg/utils"
)

// ErrProductUnavailable is returned when an order names a product that is
// inactive, sold out, or not offered by the customer's bot.
var ErrProductUnavailable = errors.New("product is not available")

// OrderRepository handles order database operations.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// OrderFilter narrows FindAll and Stats.
type OrderFilter struct {
	BotID      string
	CustomerID uint
	Status     string
	Query      string
}

func (r *OrderRepository) scoped(tenantID string, f OrderFilter) *gorm.DB {
	db := r.db.Model(&models.Order{}).Where("tenant_id = ?", tenantID)
	if f.BotID != "" {
		db = db.Where("bot_id = ?", f.BotID)
	}
	if f.CustomerID != 0 {
		db = db.Where("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Query != "" {
		search := "%" + f.Query + "%"
		db = db.Where("code LIKE ? OR product_name LIKE ?", search, search)
	}
	return db
}

// FindAll returns a tenant's orders, newest first.
func (r *OrderRepository) FindAll(tenantID string, f OrderFilter, limit, page int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	db := r.scoped(tenantID, f)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(limit, page)
	if err := db.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// FindByID returns a tenant's order by ID.
func (r *OrderRepository) FindByID(tenantID string, id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// Create creates a new order.
func (r *OrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// CreateFor places a pending order of product for customer at the product's
// current price.
func (r *OrderRepository) CreateFor(customer *models.Customer, product *models.Product, note string) (*models.Order, error) {
	if !product.Active || !product.InStock() || (product.BotID != "" && product.BotID != customer.BotID) {
		return nil, ErrProductUnavailable
	}
	order := &models.Order{
		Code:        utils.GenerateOrderCode(),
		TenantID:    customer.TenantID,
		BotID:       customer.BotID,
		CustomerID:  customer.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Amount:      product.Price,
		Currency:    product.Currency,
		Status:      models.OrderStatusPending,
		Note:        note,
	}
	if err := r.Create(order); err != nil {
		return nil, err
	}
	return order, nil
}

// Transition moves an order from one of the from statuses to status and
// applies extra column updates. It returns false if the order was not in an
// eligible status.
func (r *OrderRepository) Transition(tenantID string, id uint, from []string, status string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": status}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.Model(&models.Order{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExpirePending marks pending orders created before cutoff as expired.
func (r *OrderRepository) ExpirePending(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.Order{}).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Update("status", models.OrderStatusExpired)
	return res.RowsAffected, res.Error
}

// Stats aggregates a tenant's orders per status and sums revenue of paid and
// delivered orders.
func (r *OrderRepository) Stats(tenantID string, f OrderFilter) (*models.OrderStats, error) {
	f.Status = ""
	f.Query = ""

	var rows []struct {
		Status string
		Count  int64
		Amount int64
	}
	err := r.scoped(tenantID, f).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &models.OrderStats{ByStatus: make(map[string]int64)}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByStatus[row.Status] = row.Count
		if row.Status == models.OrderStatusPaid || row.Status == models.OrderStatusDelivered {
			stats.Revenue += row.Amount
		}
	}
	return stats, nil
}
