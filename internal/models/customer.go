package models

import "time"

// Customer is a Telegram user who talked to one of the tenant's bots.
type Customer struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID     string    `gorm:"column:tenant_id;size:36;index" json:"tenant_id"`
	BotID        string    `gorm:"column:bot_id;size:36;uniqueIndex:idx_customers_bot_tg,priority:1" json:"bot_id"`
	TelegramID   int64     `gorm:"column:telegram_id;uniqueIndex:idx_customers_bot_tg,priority:2" json:"telegram_id"`
	Username     string    `gorm:"column:username;size:100" json:"username"`
	FirstName    string    `gorm:"column:first_name;size:200" json:"first_name"`
	LastName     string    `gorm:"column:last_name;size:200" json:"last_name"`
	LanguageCode string    `gorm:"column:language_code;size:10" json:"language_code"`
	Blocked      bool      `gorm:"column:blocked;default:false" json:"blocked"`
	LastSeenAt   time.Time `gorm:"column:last_seen_at" json:"last_seen_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}
