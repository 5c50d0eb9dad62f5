package models

import (
	"time"
)

//Document is the database model that stores one schemaless document. Body holds
//the typed JSON encoding of all fields.
type Document struct {
	ID          uint   `gorm:"primarykey"`
	Collection  string `gorm:"size:255;not null;uniqueIndex:idx_document_path"`
	DocumentKey string `gorm:"size:255;not null;uniqueIndex:idx_document_path"`
	Body        string `gorm:"type:text;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

//DocumentField indexes one scalar field of a Document so that equality queries
//can be answered without decoding every body in a collection
type DocumentField struct {
	ID         uint   `gorm:"primarykey"`
	DocumentPK uint   `gorm:"not null;index"`
	Collection string `gorm:"size:255;not null;index:idx_field_lookup"`
	Name       string `gorm:"size:255;not null;index:idx_field_lookup"`
	Value      string `gorm:"type:text;not null;index:idx_field_lookup"`
}
