package models

import "time"

// WebhookEvent is one Telegram update received by a tenant's bot.
type WebhookEvent struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID  string    `gorm:"column:tenant_id;size:36;index" json:"tenant_id"`
	BotID     string    `gorm:"column:bot_id;size:36;index" json:"bot_id"`
	UpdateID  int64     `gorm:"column:update_id" json:"update_id"`
	Kind      string    `gorm:"column:kind;size:30" json:"kind"`
	ChatID    int64     `gorm:"column:chat_id" json:"chat_id"`
	Text      string    `gorm:"column:text;type:text" json:"text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
