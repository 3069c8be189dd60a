package database

import (
	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Category{},
		&models.Listing{},
		&models.Conversation{},
		&models.Message{},
		&models.Order{},
		&models.Review{},
		&models.CacheEntry{},
	)
}

// SeedData populates the default category taxonomy.
func SeedData(db *gorm.DB) error {
	categories := []models.Category{
		{BaseModel: models.BaseModel{ID: "electronics"}, Slug: "electronics", Name: "Electronics"},
		{BaseModel: models.BaseModel{ID: "fashion"}, Slug: "fashion", Name: "Fashion"},
		{BaseModel: models.BaseModel{ID: "home"}, Slug: "home", Name: "Home & Garden"},
		{BaseModel: models.BaseModel{ID: "sports"}, Slug: "sports", Name: "Sports & Leisure"},
		{BaseModel: models.BaseModel{ID: "books"}, Slug: "books", Name: "Books & Media"},
		{BaseModel: models.BaseModel{ID: "toys"}, Slug: "toys", Name: "Toys & Games"},
		{BaseModel: models.BaseModel{ID: "vehicles"}, Slug: "vehicles", Name: "Vehicles & Parts"},
		{BaseModel: models.BaseModel{ID: "other"}, Slug: "other", Name: "Other"},
	}

	for _, category := range categories {
		if err := db.Where(models.Category{Slug: category.Slug}).Attrs(category).FirstOrCreate(&models.Category{}).Error; err != nil {
			return err
		}
	}

	return nil
}
