package models

import "time"

// APIResponse is the envelope returned by every API endpoint.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Obj    interface{} `json:"obj"`
}

// PaginatedResponse wraps list results with pagination info.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// APILog maps to the `api_logs` table.
type APILog struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TenantID  string    `gorm:"column:tenant_id;size:36;index" json:"tenant_id"`
	IP        string    `gorm:"column:ip;size:64" json:"ip"`
	Method    string    `gorm:"column:method;size:10" json:"method"`
	Path      string    `gorm:"column:path;size:255" json:"path"`
	Action    string    `gorm:"column:action;size:100" json:"action"`
	Status    int       `gorm:"column:status" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (APILog) TableName() string {
	return "api_logs"
}

// KeyValue maps to the `key_values` table, a small durable key-value store.
type KeyValue struct {
	Key       string    `gorm:"column:key;primaryKey;size:191" json:"key"`
	Value     string    `gorm:"column:value;type:text" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (KeyValue) TableName() string {
	return "key_values"
}
