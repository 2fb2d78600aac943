package bootstrap

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"botdesk/internal/config"
	"botdesk/internal/models"
	"botdesk/internal/repository"
)

// MigrateAndSeed ensures required tables exist and creates the first tenant
// when the database is empty and a bootstrap tenant is configured.
func MigrateAndSeed(db *gorm.DB, seed config.BootstrapConfig) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if err := seedTenant(db, seed); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		// Core entities
		&models.Tenant{},
		&models.Bot{},
		&models.Product{},
		&models.Customer{},
		&models.Order{},
		// Queue-backed broadcasts
		&models.Broadcast{},
		&models.BroadcastItem{},
		// Logs and key-value state
		&models.WebhookEvent{},
		&models.APILog{},
		&models.KeyValue{},
	}
}

func seedTenant(db *gorm.DB, seed config.BootstrapConfig) error {
	if seed.TenantName == "" && seed.TenantKey == "" {
		return nil
	}
	if seed.TenantName == "" || seed.TenantKey == "" {
		return errors.New("BOOTSTRAP_TENANT_NAME and BOOTSTRAP_TENANT_KEY must be set together")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		tenants := repository.NewTenantRepository(tx)
		count, err := tenants.Count()
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tenants.Create(&models.Tenant{Name: seed.TenantName}, seed.TenantKey)
	})
}
