package models

import "time"

// Session stores refresh-token backed login sessions. Only a hash of the
// refresh token is persisted.
type Session struct {
	BaseModel

	UserID           string `gorm:"type:uuid;not null;index"`
	RefreshTokenHash string `gorm:"uniqueIndex;not null"`

	IPAddress string
	UserAgent string

	ExpiresAt  time.Time `gorm:"index"`
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Active reports whether the session can still be refreshed.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
