package models

import "time"

const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// Tenant is a merchant account owning bots, products, customers and orders.
type Tenant struct {
	ID         string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name       string    `gorm:"column:name;size:200" json:"name"`
	APIKeyHash string    `gorm:"column:api_key_hash;size:64;uniqueIndex" json:"-"`
	Status     string    `gorm:"column:status;size:20;default:active" json:"status"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// IsActive reports whether the tenant may use the API.
func (t *Tenant) IsActive() bool {
	return t.Status == "" || t.Status == TenantStatusActive
}
