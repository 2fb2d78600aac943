package repository

import (
	"gorm.io/gorm"

	"botdesk/internal/models"
)

// ProductRepository handles product database operations.
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindAll returns a tenant's products with pagination and search. A non-empty
// botID keeps products of that bot plus the ones shared by every bot.
func (r *ProductRepository) FindAll(tenantID, botID string, limit, page int, query string) ([]models.Product, int64, error) {
	var products []models.Product
	var total int64

	db := r.db.Model(&models.Product{}).Where("tenant_id = ?", tenantID)
	if botID != "" {
		db = db.Where("bot_id = ? OR bot_id = ''", botID)
	}
	if query != "" {
		search := "%" + query + "%"
		db = db.Where("name LIKE ? OR code LIKE ?", search, search)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(limit, page)
	if err := db.Order("id ASC").Limit(limit).Offset(offset).Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// FindForSale returns the active, in-stock products a bot can offer.
func (r *ProductRepository) FindForSale(tenantID, botID string) ([]models.Product, error) {
	var products []models.Product
	err := r.db.Where("tenant_id = ? AND (bot_id = ? OR bot_id = '') AND active = ? AND stock <> 0", tenantID, botID, true).
		Order("id ASC").
		Find(&products).Error
	return products, err
}

// FindByID returns a tenant's product by ID.
func (r *ProductRepository) FindByID(tenantID string, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Create creates a new product.
func (r *ProductRepository) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

// Update updates product fields.
func (r *ProductRepository) Update(tenantID string, id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Product{}).Where("tenant_id = ? AND id = ?", tenantID, id).Updates(updates).Error
}

// DecrementStock takes one unit out of limited stock. Unlimited stock (-1) is untouched.
func (r *ProductRepository) DecrementStock(tenantID string, id uint) error {
	return r.db.Model(&models.Product{}).
		Where("tenant_id = ? AND id = ? AND stock > 0", tenantID, id).
		Update("stock", gorm.Expr("stock - 1")).Error
}

// Delete deletes a product by ID.
func (r *ProductRepository) Delete(tenantID string, id uint) error {
	res := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
