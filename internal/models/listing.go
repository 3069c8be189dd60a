package models

import (
	"gorm.io/datatypes"
)

// ListingStatus tracks where a listing sits in its sale lifecycle.
type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingReserved  ListingStatus = "reserved"
	ListingSold      ListingStatus = "sold"
	ListingWithdrawn ListingStatus = "withdrawn"
)

// Listing is an item offered for sale by a seller.
type Listing struct {
	BaseModel

	SellerID string `gorm:"type:uuid;not null;index" json:"seller_id"`
	Seller   *User  `gorm:"foreignKey:SellerID" json:"seller,omitempty"`

	Title       string `gorm:"not null;index" json:"title"`
	Description string `json:"description"`

	// Prices are integer minor units to avoid floating point money.
	PriceCents int64  `gorm:"not null" json:"price_cents"`
	Currency   string `gorm:"not null;default:EUR" json:"currency"`

	Category  string `gorm:"index" json:"category"`
	Condition string `json:"condition"`

	// Attributes holds free-form, category-specific fields (size, brand,
	// colour) without schema churn.
	Attributes datatypes.JSON `json:"attributes,omitempty"`

	Status ListingStatus `gorm:"not null;default:active;index" json:"status"`
}
