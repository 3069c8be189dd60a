package models

import "time"

// CacheEntry backs the database cache store used for rate limiting.
type CacheEntry struct {
	BaseModel

	Key       string    `gorm:"uniqueIndex;not null"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
}
