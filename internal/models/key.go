package models

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// MaxMySQLKeyLength is the longest SourceKey a MySQL utf8mb4 unique index can
// hold (3072 bytes).
const MaxMySQLKeyLength = 768

// SourceKey is a source URL used as a catalog natural key. It is stored as
// unbounded text, except on MySQL where a unique index needs a bounded
// VARCHAR.
type SourceKey string

// GormDBDataType implements gorm's per-dialect column type hook.
func (SourceKey) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "mysql" {
		return fmt.Sprintf("varchar(%d)", MaxMySQLKeyLength)
	}
	return "text"
}
