package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document хранит одну запись коллекции. Тело записи лежит в JSON-колонке,
// метаданные в обычных колонках.
type Document struct {
	Collection string         `gorm:"primaryKey;size:64;uniqueIndex:ux_documents_collection_key,priority:1;index:ix_documents_collection_created,priority:1"`
	ID         string         `gorm:"primaryKey;size:64"`
	UniqueKey  *string        `gorm:"size:255;uniqueIndex:ux_documents_collection_key,priority:2"`
	OwnerID    string         `gorm:"size:64;index"`
	Private    bool           `gorm:"not null;default:false"`
	Data       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"index:ix_documents_collection_created,priority:2"`
	UpdatedAt  time.Time
}
