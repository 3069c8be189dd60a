package models

import "time"

// Message is a single utterance inside a conversation.
type Message struct {
	BaseModel

	ConversationID string `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderID       string `gorm:"type:uuid;not null;index" json:"sender_id"`

	Body string `gorm:"not null" json:"body"`

	ReadAt *time.Time `json:"read_at,omitempty"`
}
