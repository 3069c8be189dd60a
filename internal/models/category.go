package models

// Category is a fixed browsing taxonomy entry. Rows are seeded at start-up;
// listings reference them by slug.
type Category struct {
	BaseModel

	Slug string `gorm:"uniqueIndex;not null" json:"slug"`
	Name string `gorm:"not null" json:"name"`
}
