package models

import (
	"time"

	"gorm.io/datatypes"
)

// OrderStatus tracks an order through fulfilment.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Order records one checkout of a listing. Amount and currency are
// snapshotted at checkout time so later listing edits cannot change them.
type Order struct {
	BaseModel

	ListingID string   `gorm:"type:uuid;not null;index" json:"listing_id"`
	Listing   *Listing `gorm:"foreignKey:ListingID" json:"listing,omitempty"`

	BuyerID  string `gorm:"type:uuid;not null;index" json:"buyer_id"`
	SellerID string `gorm:"type:uuid;not null;index" json:"seller_id"`

	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Currency    string `gorm:"not null" json:"currency"`

	ShippingAddress datatypes.JSON `json:"shipping_address,omitempty"`

	Status OrderStatus `gorm:"not null;default:pending;index" json:"status"`

	// ChargeRef is the payment gateway's identifier for the charge.
	ChargeRef string `json:"-"`

	TrackingCode string `json:"tracking_code,omitempty"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}
