package models

import "time"

const (
	BroadcastStatusPending  = "pending"
	BroadcastStatusRunning  = "running"
	BroadcastStatusDone     = "done"
	BroadcastStatusFailed   = "failed"
	BroadcastStatusCanceled = "canceled"

	BroadcastItemPending = "pending"
	BroadcastItemDone    = "done"
	BroadcastItemFailed  = "failed"
)

// Broadcast is a queued message to every customer of one bot, processed
// incrementally by the scheduler.
type Broadcast struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID       string    `gorm:"column:tenant_id;size:36;index" json:"tenant_id"`
	BotID          string    `gorm:"column:bot_id;size:36" json:"bot_id"`
	Message        string    `gorm:"column:message;type:text" json:"message"`
	Status         string    `gorm:"column:status;size:30;index" json:"status"`
	TotalItems     int       `gorm:"column:total_items;default:0" json:"total_items"`
	ProcessedItems int       `gorm:"column:processed_items;default:0" json:"processed_items"`
	FailedItems    int       `gorm:"column:failed_items;default:0" json:"failed_items"`
	LastError      string    `gorm:"column:last_error;type:text" json:"last_error"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Broadcast) TableName() string {
	return "broadcasts"
}

// BroadcastItem is one recipient of a broadcast.
type BroadcastItem struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	BroadcastID uint      `gorm:"column:broadcast_id;index:idx_broadcast_items_status,priority:1" json:"broadcast_id"`
	ChatID      int64     `gorm:"column:chat_id" json:"chat_id"`
	Status      string    `gorm:"column:status;size:30;index:idx_broadcast_items_status,priority:2" json:"status"`
	Attempts    int       `gorm:"column:attempts;default:0" json:"attempts"`
	LastError   string    `gorm:"column:last_error;type:text" json:"last_error"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (BroadcastItem) TableName() string {
	return "broadcast_items"
}
