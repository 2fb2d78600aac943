package models

import "time"

const (
	BotStatusActive   = "active"
	BotStatusDisabled = "disabled"
)

// Bot is a Telegram bot integration owned by a tenant.
type Bot struct {
	ID            string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	TenantID      string    `gorm:"column:tenant_id;size:36;index:idx_bots_tenant_created,priority:1" json:"tenant_id"`
	Name          string    `gorm:"column:name;size:200" json:"name"`
	Username      string    `gorm:"column:username;size:100" json:"username"`
	Token         string    `gorm:"column:token;size:200" json:"-"`
	WebhookSecret string    `gorm:"column:webhook_secret;size:64" json:"-"`
	WelcomeText   string    `gorm:"column:welcome_text;type:text" json:"welcome_text"`
	Config        string    `gorm:"column:config;type:text" json:"config"`
	IsPrimary     bool      `gorm:"column:is_primary;default:false" json:"is_primary"`
	Status        string    `gorm:"column:status;size:20;default:active" json:"status"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;index:idx_bots_tenant_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Bot) TableName() string {
	return "bots"
}
