package models

import "time"

// InventoryItem is one cataloged product image. ImageURL is the natural key.
type InventoryItem struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"type:text;not null" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	ImageURL     SourceKey `gorm:"not null;uniqueIndex" json:"image_url"`
	Category     string    `gorm:"type:text" json:"category"`
	Material     string    `gorm:"type:text" json:"material"`
	Color        string    `gorm:"type:text" json:"color"`
	Dimensions   string    `gorm:"type:text" json:"dimensions"`
	OriginSource string    `gorm:"type:text" json:"origin_source"`
	ImportCost   float64   `gorm:"not null;default:0" json:"import_cost"`
	RetailPrice  float64   `gorm:"not null;default:0" json:"retail_price"`
	KeyTags      string    `gorm:"type:text" json:"key_tags"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName keeps the historical table name.
func (InventoryItem) TableName() string { return "products" }
