package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/models"
)

var (
	// ErrReviewNotAllowed indicates the order is not delivered or the
	// caller is not a party to it.
	ErrReviewNotAllowed = errors.New("review: order not eligible")
	// ErrAlreadyReviewed indicates the caller already reviewed this order.
	ErrAlreadyReviewed = errors.New("review: already submitted for order")
	// ErrInvalidRating indicates a rating outside 1..5.
	ErrInvalidRating = errors.New("review: rating must be between 1 and 5")
)

// ReviewService handles post-trade feedback. Reviews attach to delivered
// orders only, one per party per order.
type ReviewService struct {
	db *gorm.DB
}

// NewReviewService constructs a ReviewService.
func NewReviewService(db *gorm.DB) (*ReviewService, error) {
	if db == nil {
		return nil, errors.New("review service: db is required")
	}
	return &ReviewService{db: db}, nil
}

// SubmitReviewInput carries one party's feedback on a delivered order.
type SubmitReviewInput struct {
	OrderID  string
	AuthorID string
	Rating   int
	Comment  string
}

// Submit records the author's review of the counterparty on a delivered
// order.
func (s *ReviewService) Submit(ctx context.Context, input SubmitReviewInput) (*models.Review, error) {
	ctx = ensureContext(ctx)

	if input.Rating < 1 || input.Rating > 5 {
		return nil, ErrInvalidRating
	}

	var order models.Order
	if err := s.db.WithContext(ctx).Take(&order, "id = ?", input.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("review service: load order: %w", err)
	}
	if order.BuyerID != input.AuthorID && order.SellerID != input.AuthorID {
		return nil, ErrReviewNotAllowed
	}
	if order.Status != models.OrderDelivered {
		return nil, ErrReviewNotAllowed
	}

	subjectID := order.SellerID
	if input.AuthorID == order.SellerID {
		subjectID = order.BuyerID
	}

	review := models.Review{
		OrderID:   order.ID,
		AuthorID:  input.AuthorID,
		SubjectID: subjectID,
		Rating:    input.Rating,
		Comment:   strings.TrimSpace(input.Comment),
	}
	if err := s.db.WithContext(ctx).Create(&review).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("review service: create: %w", err)
	}
	return &review, nil
}

// ForUser lists reviews received by a user, newest first.
func (s *ReviewService) ForUser(ctx context.Context, userID string) ([]models.Review, error) {
	ctx = ensureContext(ctx)

	var reviews []models.Review
	if err := s.db.WithContext(ctx).
		Where("subject_id = ?", userID).
		Order("created_at DESC").
		Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("review service: list: %w", err)
	}
	return reviews, nil
}

// RatingSummary is a user's aggregate feedback.
type RatingSummary struct {
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}

// Summary computes the review count and mean rating received by a user.
func (s *ReviewService) Summary(ctx context.Context, userID string) (*RatingSummary, error) {
	ctx = ensureContext(ctx)

	var summary RatingSummary
	row := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("COUNT(*), COALESCE(AVG(rating), 0)").
		Where("subject_id = ?", userID).
		Row()
	if err := row.Scan(&summary.Count, &summary.Average); err != nil {
		return nil, fmt.Errorf("review service: summary: %w", err)
	}
	return &summary, nil
}
