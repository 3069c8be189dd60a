package models

// Review is feedback left on a delivered order. The unique index on
// (order_id, author_id) allows each party one review per order.
type Review struct {
	BaseModel

	OrderID  string `gorm:"type:uuid;not null;uniqueIndex:idx_review_once" json:"order_id"`
	AuthorID string `gorm:"type:uuid;not null;uniqueIndex:idx_review_once" json:"author_id"`

	// SubjectID is the counterparty being reviewed.
	SubjectID string `gorm:"type:uuid;not null;index" json:"subject_id"`

	Rating  int    `gorm:"not null" json:"rating"`
	Comment string `json:"comment"`
}
