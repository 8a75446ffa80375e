package models

import "time"

// SyncMeta is a key/value row for sync bookkeeping (catalog watermark,
// device identifier and similar).
type SyncMeta struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (SyncMeta) TableName() string { return "sync_meta" }

// Well-known sync_meta keys.
const (
	MetaKeyCatalogWatermark = "products_last_sync"
	MetaKeyDeviceID         = "device_id"
)
