package repository

import (
	"gorm.io/gorm"

	"botdesk/internal/models"
)

// BotRepository handles bot database operations.
type BotRepository struct {
	db *gorm.DB
}

func NewBotRepository(db *gorm.DB) *BotRepository {
	return &BotRepository{db: db}
}

// FindByTenant returns every bot of a tenant in natural order (oldest first).
func (r *BotRepository) FindByTenant(tenantID string) ([]models.Bot, error) {
	var bots []models.Bot
	err := r.db.Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&bots).Error
	return bots, err
}

// FindByID returns a bot by ID regardless of tenant. Used by the webhook relay.
func (r *BotRepository) FindByID(id string) (*models.Bot, error) {
	var bot models.Bot
	if err := r.db.Where("id = ?", id).First(&bot).Error; err != nil {
		return nil, err
	}
	return &bot, nil
}

// FindForTenant returns a bot only if it belongs to tenantID.
func (r *BotRepository) FindForTenant(tenantID, id string) (*models.Bot, error) {
	var bot models.Bot
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&bot).Error; err != nil {
		return nil, err
	}
	return &bot, nil
}

// ExistsByToken reports whether any bot already uses token.
func (r *BotRepository) ExistsByToken(token string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Bot{}).Where("token = ?", token).Count(&count).Error
	return count > 0, err
}

// Create inserts a bot. When the bot is primary, the flag is cleared on the
// tenant's other bots in the same transaction.
func (r *BotRepository) Create(bot *models.Bot) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if bot.IsPrimary {
			if err := clearPrimary(tx, bot.TenantID); err != nil {
				return err
			}
		}
		return tx.Create(bot).Error
	})
}

// Update updates bot fields.
func (r *BotRepository) Update(tenantID, id string, updates map[string]interface{}) error {
	return r.db.Model(&models.Bot{}).Where("tenant_id = ? AND id = ?", tenantID, id).Updates(updates).Error
}

// SetPrimary marks one bot as the tenant's primary bot.
func (r *BotRepository) SetPrimary(tenantID, id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := clearPrimary(tx, tenantID); err != nil {
			return err
		}
		res := tx.Model(&models.Bot{}).Where("tenant_id = ? AND id = ?", tenantID, id).Update("is_primary", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Delete deletes a bot of a tenant.
func (r *BotRepository) Delete(tenantID, id string) error {
	res := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.Bot{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func clearPrimary(tx *gorm.DB, tenantID string) error {
	return tx.Model(&models.Bot{}).
		Where("tenant_id = ? AND is_primary = ?", tenantID, true).
		Update("is_primary", false).Error
}
