package models

import "time"

// Product is a digital good sold through a tenant's bots. An empty BotID
// makes the product available on every bot of the tenant.
type Product struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID    string    `gorm:"column:tenant_id;size:36;index" json:"tenant_id"`
	BotID       string    `gorm:"column:bot_id;size:36;index" json:"bot_id"`
	Code        string    `gorm:"column:code;size:50;index" json:"code"`
	Name        string    `gorm:"column:name;size:300" json:"name"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	Price       int64     `gorm:"column:price;default:0" json:"price"`
	Currency    string    `gorm:"column:currency;size:10" json:"currency"`
	Content     string    `gorm:"column:content;type:text" json:"-"`
	Stock       int       `gorm:"column:stock" json:"stock"`
	Active      bool      `gorm:"column:active" json:"active"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// InStock reports whether at least one unit can be sold. Negative stock means unlimited.
func (p *Product) InStock() bool {
	return p.Stock != 0
}
