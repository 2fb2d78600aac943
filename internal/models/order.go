package models

import "time"

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusDelivered = "delivered"
	OrderStatusCanceled  = "canceled"
	OrderStatusExpired   = "expired"
)

// Order records the sale of one product to one customer.
type Order struct {
	ID          uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Code        string     `gorm:"column:code;size:64;uniqueIndex" json:"code"`
	TenantID    string     `gorm:"column:tenant_id;size:36;index:idx_orders_tenant_status,priority:1" json:"tenant_id"`
	BotID       string     `gorm:"column:bot_id;size:36;index" json:"bot_id"`
	CustomerID  uint       `gorm:"column:customer_id;index" json:"customer_id"`
	ProductID   uint       `gorm:"column:product_id" json:"product_id"`
	ProductName string     `gorm:"column:product_name;size:300" json:"product_name"`
	Amount      int64      `gorm:"column:amount;default:0" json:"amount"`
	Currency    string     `gorm:"column:currency;size:10" json:"currency"`
	Status      string     `gorm:"column:status;size:20;index:idx_orders_tenant_status,priority:2" json:"status"`
	Note        string     `gorm:"column:note;size:500" json:"note"`
	PaidAt      *time.Time `gorm:"column:paid_at" json:"paid_at"`
	DeliveredAt *time.Time `gorm:"column:delivered_at" json:"delivered_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderStats aggregates a tenant's orders.
type OrderStats struct {
	Total     int64            `json:"total"`
	ByStatus  map[string]int64 `json:"by_status"`
	Revenue   int64            `json:"revenue"`
	Customers int64            `json:"customers"`
}
