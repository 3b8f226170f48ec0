package db

import (
	"fmt"

	"github.com/zulandar/instantory/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model managed by Instantory.
func AllModels() []interface{} {
	return []interface{}{
		&models.InventoryItem{},
		&models.Document{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
