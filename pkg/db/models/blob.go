package models

import "time"

// StorageBlob is the single persisted row shape: one named blob per store.
// Domain records are JSON documents inside Data; the schema never grows a
// table per record type.
type StorageBlob struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Data      []byte    `gorm:"column:data;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name regardless of gorm's pluralization.
func (StorageBlob) TableName() string {
	return "storage_blobs"
}
