package models

import "time"

// Document is one analyzed document. FilePath, the source URL, is the
// natural key.
type Document struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title            string    `gorm:"type:text;not null" json:"title"`
	Author           string    `gorm:"type:text" json:"author"`
	JournalPublisher *string   `gorm:"type:text" json:"journal_publisher"`
	PublicationYear  *int      `json:"publication_year"`
	PageLength       int       `json:"page_length"`
	Thesis           string    `gorm:"type:text" json:"thesis"`
	Issue            string    `gorm:"type:text" json:"issue"`
	Summary          string    `gorm:"type:text" json:"summary"`
	Category         string    `gorm:"type:text" json:"category"`
	Field            string    `gorm:"type:text" json:"field"`
	Hashtags         string    `gorm:"type:text" json:"hashtags"`
	InfluencedBy     string    `gorm:"type:text" json:"influenced_by"`
	FilePath         SourceKey `gorm:"not null;uniqueIndex" json:"file_path"`
	FileType         string    `gorm:"size:16" json:"file_type"`
	ExtractedText    string    `json:"-"`
	LastAnalyzed     time.Time `json:"last_analyzed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName keeps the historical table name.
func (Document) TableName() string { return "document_vault" }
