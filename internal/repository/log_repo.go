package repository

import (
	"time"

	"gorm.io/gorm"

	"botdesk/internal/models"
)

// LogRepository stores API request logs and webhook events.
type LogRepository struct {
	db *gorm.DB
}

func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

// CreateAPILog inserts one API request log row.
func (r *LogRepository) CreateAPILog(entry *models.APILog) error {
	return r.db.Create(entry).Error
}

// CreateWebhookEvent inserts one received Telegram update.
func (r *LogRepository) CreateWebhookEvent(event *models.WebhookEvent) error {
	return r.db.Create(event).Error
}

// RecentWebhookEvents lists a bot's latest updates.
func (r *LogRepository) RecentWebhookEvents(tenantID, botID string, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	if limit <= 0 {
		limit = defaultPageSize
	}
	db := r.db.Where("tenant_id = ?", tenantID)
	if botID != "" {
		db = db.Where("bot_id = ?", botID)
	}
	err := db.Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// PruneWebhookEvents deletes events older than cutoff.
func (r *LogRepository) PruneWebhookEvents(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&models.WebhookEvent{})
	return res.RowsAffected, res.Error
}

// PruneAPILogs deletes API logs older than cutoff.
func (r *LogRepository) PruneAPILogs(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&models.APILog{})
	return res.RowsAffected, res.Error
}
