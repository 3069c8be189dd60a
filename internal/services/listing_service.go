package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/models"
)

var (
	// ErrListingNotFound indicates no listing matches the id.
	ErrListingNotFound = errors.New("listing: not found")
	// ErrNotListingOwner indicates the caller does not own the listing.
	ErrNotListingOwner = errors.New("listing: not the owner")
	// ErrListingUnavailable indicates the listing is not open for the operation.
	ErrListingUnavailable = errors.New("listing: not available")
)

// ListingService owns the listing catalogue: create, edit, withdraw, search.
type ListingService struct {
	db *gorm.DB
}

// NewListingService constructs a ListingService.
func NewListingService(db *gorm.DB) (*ListingService, error) {
	if db == nil {
		return nil, errors.New("listing service: db is required")
	}
	return &ListingService{db: db}, nil
}

// CreateListingInput carries attributes for a new listing.
type CreateListingInput struct {
	SellerID    string
	Title       string
	Description string
	PriceCents  int64
	Currency    string
	Category    string
	Condition   string
	Attributes  map[string]any
}

// Create publishes a new active listing for the seller.
func (s *ListingService) Create(ctx context.Context, input CreateListingInput) (*models.Listing, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errors.New("listing service: title is required")
	}
	if input.SellerID == "" {
		return nil, errors.New("listing service: seller id is required")
	}
	if input.PriceCents <= 0 {
		return nil, errors.New("listing service: price must be positive")
	}

	listing := models.Listing{
		SellerID:    input.SellerID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		PriceCents:  input.PriceCents,
		Currency:    strings.ToUpper(defaultIfEmpty(strings.TrimSpace(input.Currency), "EUR")),
		Category:    strings.TrimSpace(defaultIfEmpty(input.Category, "other")),
		Condition:   strings.TrimSpace(input.Condition),
		Status:      models.ListingActive,
	}

	if input.Attributes != nil {
		data, err := json.Marshal(input.Attributes)
		if err != nil {
			return nil, fmt.Errorf("listing service: marshal attributes: %w", err)
		}
		listing.Attributes = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&listing).Error; err != nil {
		return nil, fmt.Errorf("listing service: create: %w", err)
	}

	return &listing, nil
}

// UpdateListingInput carries optional patches; nil fields are untouched.
type UpdateListingInput struct {
	Title       *string
	Description *string
	PriceCents  *int64
	Category    *string
	Condition   *string
	Attributes  map[string]any
}

// Update edits a listing. Only the owning seller may edit, and sold
// listings are immutable.
func (s *ListingService) Update(ctx context.Context, listingID, sellerID string, input UpdateListingInput) (*models.Listing, error) {
	ctx = ensureContext(ctx)

	listing, err := s.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != sellerID {
		return nil, ErrNotListingOwner
	}
	if listing.Status == models.ListingSold {
		return nil, ErrListingUnavailable
	}

	updates := map[string]any{}
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, errors.New("listing service: title cannot be empty")
		}
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.PriceCents != nil {
		if *input.PriceCents <= 0 {
			return nil, errors.New("listing service: price must be positive")
		}
		updates["price_cents"] = *input.PriceCents
	}
	if input.Category != nil {
		updates["category"] = strings.TrimSpace(*input.Category)
	}
	if input.Condition != nil {
		updates["condition"] = strings.TrimSpace(*input.Condition)
	}
	if input.Attributes != nil {
		data, err := json.Marshal(input.Attributes)
		if err != nil {
			return nil, fmt.Errorf("listing service: marshal attributes: %w", err)
		}
		updates["attributes"] = datatypes.JSON(data)
	}

	if len(updates) == 0 {
		return listing, nil
	}

	if err := s.db.WithContext(ctx).Model(listing).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("listing service: update: %w", err)
	}

	return s.Get(ctx, listingID)
}

// Withdraw takes an unsold listing off the marketplace.
func (s *ListingService) Withdraw(ctx context.Context, listingID, sellerID string) error {
	ctx = ensureContext(ctx)

	listing, err := s.Get(ctx, listingID)
	if err != nil {
		return err
	}
	if listing.SellerID != sellerID {
		return ErrNotListingOwner
	}
	if listing.Status == models.ListingSold || listing.Status == models.ListingReserved {
		return ErrListingUnavailable
	}

	if err := s.db.WithContext(ctx).Model(listing).
		Update("status", models.ListingWithdrawn).Error; err != nil {
		return fmt.Errorf("listing service: withdraw: %w", err)
	}
	return nil
}

// Get loads a single listing with its seller preloaded.
func (s *ListingService) Get(ctx context.Context, listingID string) (*models.Listing, error) {
	ctx = ensureContext(ctx)

	var listing models.Listing
	if err := s.db.WithContext(ctx).Preload("Seller").Take(&listing, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("listing service: get: %w", err)
	}
	return &listing, nil
}

// SearchInput defines catalogue filters. Zero values mean "no filter".
type SearchInput struct {
	Query         string
	Category      string
	SellerID      string
	Status        models.ListingStatus
	MinPriceCents int64
	MaxPriceCents int64
	Page          int
	PerPage       int
}

// Search returns matching listings newest-first along with the total count.
// Without an explicit status filter only active listings are returned.
func (s *ListingService) Search(ctx context.Context, input SearchInput) ([]models.Listing, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Listing{})

	if term := strings.TrimSpace(input.Query); term != "" {
		pattern := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	if category := strings.TrimSpace(input.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if input.SellerID != "" {
		query = query.Where("seller_id = ?", input.SellerID)
	}
	if input.Status != "" {
		query = query.Where("status = ?", input.Status)
	} else {
		query = query.Where("status = ?", models.ListingActive)
	}
	if input.MinPriceCents > 0 {
		query = query.Where("price_cents >= ?", input.MinPriceCents)
	}
	if input.MaxPriceCents > 0 {
		query = query.Where("price_cents <= ?", input.MaxPriceCents)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("listing service: count: %w", err)
	}

	page := input.Page
	if page < 1 {
		page = 1
	}
	perPage := input.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	var listings []models.Listing
	if err := query.Preload("Seller").
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&listings).Error; err != nil {
		return nil, 0, fmt.Errorf("listing service: search: %w", err)
	}

	return listings, total, nil
}
