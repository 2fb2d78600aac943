package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"botdesk/internal/models"
)

// CustomerRepository handles customer database operations.
type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// FindAll returns a tenant's customers with pagination, search and optional bot filter.
func (r *CustomerRepository) FindAll(tenantID, botID string, limit, page int, query string) ([]models.Customer, int64, error) {
	var customers []models.Customer
	var total int64

	db := r.db.Model(&models.Customer{}).Where("tenant_id = ?", tenantID)
	if botID != "" {
		db = db.Where("bot_id = ?", botID)
	}
	if query != "" {
		search := "%" + query + "%"
		db = db.Where("username LIKE ? OR first_name LIKE ? OR last_name LIKE ? OR CAST(telegram_id AS CHAR) LIKE ?",
			search, search, search, search)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(limit, page)
	if err := db.Order("last_seen_at DESC").Limit(limit).Offset(offset).Find(&customers).Error; err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

// FindByID returns a tenant's customer by ID.
func (r *CustomerRepository) FindByID(tenantID string, id uint) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindByTelegramID returns the customer of a bot with the given Telegram user id.
func (r *CustomerRepository) FindByTelegramID(botID string, telegramID int64) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.Where("bot_id = ? AND telegram_id = ?", botID, telegramID).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// Upsert inserts the customer or refreshes its profile fields and last-seen time.
func (r *CustomerRepository) Upsert(customer *models.Customer) error {
	if customer.LastSeenAt.IsZero() {
		customer.LastSeenAt = time.Now()
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bot_id"}, {Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "language_code", "last_seen_at", "updated_at"}),
	}).Create(customer).Error
	if err != nil {
		return err
	}
	// The generated id is unreliable after an update on conflict, so reload.
	stored, err := r.FindByTelegramID(customer.BotID, customer.TelegramID)
	if err != nil {
		return err
	}
	*customer = *stored
	return nil
}

// ChatIDsForBot returns the Telegram ids of a bot's reachable customers.
func (r *CustomerRepository) ChatIDsForBot(tenantID, botID string) ([]int64, error) {
	var ids []int64
	err := r.db.Model(&models.Customer{}).
		Where("tenant_id = ? AND bot_id = ? AND blocked = ?", tenantID, botID, false).
		Order("id ASC").
		Pluck("telegram_id", &ids).Error
	return ids, err
}

// SetBlocked flags or unflags a customer.
func (r *CustomerRepository) SetBlocked(tenantID string, id uint, blocked bool) error {
	res := r.db.Model(&models.Customer{}).Where("tenant_id = ? AND id = ?", tenantID, id).Update("blocked", blocked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkBlockedByChat flags the customer who blocked the bot.
func (r *CustomerRepository) MarkBlockedByChat(botID string, telegramID int64) error {
	return r.db.Model(&models.Customer{}).
		Where("bot_id = ? AND telegram_id = ?", botID, telegramID).
		Update("blocked", true).Error
}

// CountByTenant counts a tenant's customers, optionally for one bot.
func (r *CustomerRepository) CountByTenant(tenantID, botID string) (int64, error) {
	var count int64
	db := r.db.Model(&models.Customer{}).Where("tenant_id = ?", tenantID)
	if botID != "" {
		db = db.Where("bot_id = ?", botID)
	}
	err := db.Count(&count).Error
	return count, err
}
