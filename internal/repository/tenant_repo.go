package repository

import (
	"gorm.io/gorm"

	"botdesk/internal/models"
	"botdesk/internal/pkg/utils"
)

// TenantRepository handles tenant database operations.
type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// FindAll returns tenants with pagination and name search.
func (r *TenantRepository) FindAll(limit, page int, query string) ([]models.Tenant, int64, error) {
	var tenants []models.Tenant
	var total int64

	db := r.db.Model(&models.Tenant{})
	if query != "" {
		db = db.Where("name LIKE ?", "%"+query+"%")
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(limit, page)
	if err := db.Order("created_at ASC").Limit(limit).Offset(offset).Find(&tenants).Error; err != nil {
		return nil, 0, err
	}
	return tenants, total, nil
}

// FindByID returns a tenant by ID.
func (r *TenantRepository) FindByID(id string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.Where("id = ?", id).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByAPIKey resolves the tenant owning a plaintext API key.
func (r *TenantRepository) FindByAPIKey(key string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.Where("api_key_hash = ?", utils.HashAPIKey(key)).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Create inserts a tenant, storing only the hash of apiKey.
func (r *TenantRepository) Create(tenant *models.Tenant, apiKey string) error {
	if tenant.ID == "" {
		tenant.ID = utils.GenerateUUID()
	}
	if tenant.Status == "" {
		tenant.Status = models.TenantStatusActive
	}
	tenant.APIKeyHash = utils.HashAPIKey(apiKey)
	return r.db.Create(tenant).Error
}

// Count returns the number of tenants.
func (r *TenantRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Tenant{}).Count(&count).Error
	return count, err
}

// Update updates tenant fields.
func (r *TenantRepository) Update(id string, updates map[string]interface{}) error {
	return r.db.Model(&models.Tenant{}).Where("id = ?", id).Updates(updates).Error
}

// RotateKey replaces the tenant's API key hash.
func (r *TenantRepository) RotateKey(id, apiKey string) error {
	return r.Update(id, map[string]interface{}{"api_key_hash": utils.HashAPIKey(apiKey)})
}

// Delete deletes a tenant and everything it owns.
func (r *TenantRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		owned := []interface{}{
			&models.Bot{}, &models.Product{}, &models.Customer{}, &models.Order{},
			&models.WebhookEvent{}, &models.APILog{},
		}
		for _, m := range owned {
			if err := tx.Where("tenant_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		var broadcastIDs []uint
		if err := tx.Model(&models.Broadcast{}).Where("tenant_id = ?", id).Pluck("id", &broadcastIDs).Error; err != nil {
			return err
		}
		if len(broadcastIDs) > 0 {
			if err := tx.Where("broadcast_id IN ?", broadcastIDs).Delete(&models.BroadcastItem{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", broadcastIDs).Delete(&models.Broadcast{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&models.Tenant{}).Error
	})
}
