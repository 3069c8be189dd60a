package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole distinguishes buyers from sellers.
type UserRole string

const (
	RoleBuyer  UserRole = "buyer"
	RoleSeller UserRole = "seller"
)

// Valid reports whether the role is one of the supported values.
func (r UserRole) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// User describes a marketplace account. Emails are stored normalized
// (lowercase, trimmed) so the unique index is effectively case-insensitive.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`

	PasswordHash string `gorm:"not null" json:"-"`

	DisplayName string   `json:"display_name"`
	Avatar      string   `json:"avatar"`
	Role        UserRole `gorm:"not null;default:buyer" json:"role"`

	IsVerified bool `gorm:"default:false" json:"is_verified"`
	IsActive   bool `gorm:"default:true" json:"is_active"`

	// UsernameChangedAt enforces the one-time username change: once set it
	// is never cleared.
	UsernameChangedAt *time.Time `json:"username_changed_at,omitempty"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
