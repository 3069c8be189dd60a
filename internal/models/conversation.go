package models

import "time"

// Conversation is the single message thread between a buyer and the seller
// of one listing. The unique index on (listing_id, buyer_id) gives each
// pair exactly one conversation; senders always reuse it.
type Conversation struct {
	BaseModel

	ListingID string   `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_pair" json:"listing_id"`
	Listing   *Listing `gorm:"foreignKey:ListingID" json:"listing,omitempty"`

	BuyerID  string `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_pair;index" json:"buyer_id"`
	SellerID string `gorm:"type:uuid;not null;index" json:"seller_id"`

	// Cached copy of the newest message so conversation lists render
	// without joining the messages table.
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `gorm:"index" json:"last_message_at"`

	BuyerUnread  int `gorm:"default:0" json:"buyer_unread"`
	SellerUnread int `gorm:"default:0" json:"seller_unread"`

	Messages []Message `gorm:"foreignKey:ConversationID" json:"-"`
}

// Participant reports whether the user takes part in the conversation.
func (c *Conversation) Participant(userID string) bool {
	return c.BuyerID == userID || c.SellerID == userID
}
