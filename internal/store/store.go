// Package store persists enrichment records and serves the read side of the
// inventory and document catalogs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/zulandar/instantory/internal/analyzer"
	"github.com/zulandar/instantory/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrKeyTooLong is returned when a source URL exceeds what the
	// database's unique index can hold.
	ErrKeyTooLong = errors.New("source url too long")
)

// DefaultListLimit caps catalog listings.
const DefaultListLimit = 1000

var (
	inventoryUpdateColumns = []string{
		"name", "description", "category", "material", "color", "dimensions",
		"origin_source", "import_cost", "retail_price", "key_tags", "updated_at",
	}
	documentUpdateColumns = []string{
		"title", "author", "journal_publisher", "publication_year", "page_length",
		"thesis", "issue", "summary", "category", "field", "hashtags", "influenced_by",
		"file_type", "extracted_text", "last_analyzed", "updated_at",
	}
)

// Store reads and writes catalog rows.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store over db.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// UpsertInventory inserts rec or, when its image URL is already cataloged,
// overwrites every mutable column. created_at is preserved.
func (s *Store) UpsertInventory(ctx context.Context, rec analyzer.InventoryRecord) error {
	if err := checkKey(s.db.Dialector.Name(), rec.ImageURL); err != nil {
		return fmt.Errorf("store: upsert inventory: %w", err)
	}
	item := models.InventoryItem{
		Name:         rec.Name,
		Description:  rec.Description,
		ImageURL:     models.SourceKey(rec.ImageURL),
		Category:     rec.Category,
		Material:     rec.Material,
		Color:        rec.Color,
		Dimensions:   rec.Dimensions,
		OriginSource: rec.OriginSource,
		ImportCost:   rec.ImportCost,
		RetailPrice:  rec.RetailPrice,
		KeyTags:      rec.KeyTags,
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "image_url"}},
		DoUpdates: clause.AssignmentColumns(inventoryUpdateColumns),
	}).Create(&item)
	if result.Error != nil {
		return fmt.Errorf("store: upsert inventory %q: %w", rec.ImageURL, result.Error)
	}
	return nil
}

// UpsertDocument inserts rec or, when its file path is already cataloged,
// overwrites every mutable column. created_at is preserved.
func (s *Store) UpsertDocument(ctx context.Context, rec analyzer.DocumentRecord) error {
	if err := checkKey(s.db.Dialector.Name(), rec.FilePath); err != nil {
		return fmt.Errorf("store: upsert document: %w", err)
	}
	doc := models.Document{
		Title:            rec.Title,
		Author:           rec.Author,
		JournalPublisher: rec.JournalPublisher,
		PublicationYear:  rec.PublicationYear,
		PageLength:       rec.PageLength,
		Thesis:           rec.Thesis,
		Issue:            rec.Issue,
		Summary:          rec.Summary,
		Category:         rec.Category,
		Field:            rec.Field,
		Hashtags:         rec.Hashtags,
		InfluencedBy:     rec.InfluencedBy,
		FilePath:         models.SourceKey(rec.FilePath),
		FileType:         rec.FileType,
		ExtractedText:    rec.ExtractedText,
		LastAnalyzed:     s.now(),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_path"}},
		DoUpdates: clause.AssignmentColumns(documentUpdateColumns),
	}).Create(&doc)
	if result.Error != nil {
		return fmt.Errorf("store: upsert document %q: %w", rec.FilePath, result.Error)
	}
	return nil
}

// checkKey rejects natural keys the dialect's unique index cannot store.
// Only MySQL bounds the key column.
func checkKey(dialect, key string) error {
	if dialect == "mysql" && utf8.RuneCountInString(key) > models.MaxMySQLKeyLength {
		return fmt.Errorf("%w: %d characters, limit %d", ErrKeyTooLong, utf8.RuneCountInString(key), models.MaxMySQLKeyLength)
	}
	return nil
}

// ListInventory returns the newest items first. A limit <= 0 returns all rows.
func (s *Store) ListInventory(ctx context.Context, limit int) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("store: list inventory: %w", err)
	}
	return items, nil
}

// ListDocuments returns the most recently created documents first, without
// their extracted text. A limit <= 0 returns all rows.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]models.Document, error) {
	var docs []models.Document
	q := s.db.WithContext(ctx).Omit("extracted_text").Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	return docs, nil
}

// DocumentText returns the extracted text of document id.
func (s *Store) DocumentText(ctx context.Context, id uint) (string, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Select("id", "extracted_text").First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("store: document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("store: document %d text: %w", id, err)
	}
	return doc.ExtractedText, nil
}

// ResetInventory deletes every inventory row and returns how many were removed.
func (s *Store) ResetInventory(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.InventoryItem{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: reset inventory: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ResetDocuments deletes every document row and returns how many were removed.
func (s *Store) ResetDocuments(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Document{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: reset documents: %w", result.Error)
	}
	return result.RowsAffected, nil
}
