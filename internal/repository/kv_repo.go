package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"botdesk/internal/models"
)

// KeyValueRepository is a durable string key-value table.
type KeyValueRepository struct {
	db *gorm.DB
}

func NewKeyValueRepository(db *gorm.DB) *KeyValueRepository {
	return &KeyValueRepository{db: db}
}

// Get returns the value stored under key.
func (r *KeyValueRepository) Get(ctx context.Context, key string) (string, error) {
	var kv models.KeyValue
	if err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&kv).Error; err != nil {
		return "", err
	}
	return kv.Value, nil
}

// Set writes value under key, replacing any previous value.
func (r *KeyValueRepository) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.KeyValue{Key: key, Value: value}).Error
}
