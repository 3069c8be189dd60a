package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/models"
	"github.com/tradepost/tradepost/internal/payment"
)

func deliveredOrder(t *testing.T, db *gorm.DB, buyer, seller *models.User, listing *models.Listing) *models.Order {
	t.Helper()

	svc, err := NewOrderService(db, payment.NewMockCharger(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	order, err := svc.Checkout(ctx, CheckoutInput{ListingID: listing.ID, BuyerID: buyer.ID})
	require.NoError(t, err)
	_, err = svc.Pay(ctx, order.ID, buyer.ID)
	require.NoError(t, err)
	_, err = svc.Ship(ctx, order.ID, seller.ID, "TRK1")
	require.NoError(t, err)
	order, err = svc.ConfirmDelivery(ctx, order.ID, buyer.ID)
	require.NoError(t, err)
	return order
}

func TestSubmitReview(t *testing.T) {
	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)
	buyer := createTestUser(t, db, "buyer@example.com", "buyer", models.RoleBuyer)
	listing := createTestListing(t, db, seller.ID, 10000)
	order := deliveredOrder(t, db, buyer, seller, listing)

	svc, err := NewReviewService(db)
	require.NoError(t, err)
	ctx := context.Background()

	review, err := svc.Submit(ctx, SubmitReviewInput{
		OrderID:  order.ID,
		AuthorID: buyer.ID,
		Rating:   5,
		Comment:  "Fast shipping, item as described.",
	})
	require.NoError(t, err)
	require.Equal(t, seller.ID, review.SubjectID)

	// One review per party per order.
	_, err = svc.Submit(ctx, SubmitReviewInput{OrderID: order.ID, AuthorID: buyer.ID, Rating: 4})
	require.ErrorIs(t, err, ErrAlreadyReviewed)

	// The counterparty gets their own slot.
	sellerReview, err := svc.Submit(ctx, SubmitReviewInput{OrderID: order.ID, AuthorID: seller.ID, Rating: 4})
	require.NoError(t, err)
	require.Equal(t, buyer.ID, sellerReview.SubjectID)
}

func TestSubmitReviewEligibility(t *testing.T) {
	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)
	buyer := createTestUser(t, db, "buyer@example.com", "buyer", models.RoleBuyer)
	listing := createTestListing(t, db, seller.ID, 10000)

	orderSvc, err := NewOrderService(db, payment.NewMockCharger(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	order, err := orderSvc.Checkout(ctx, CheckoutInput{ListingID: listing.ID, BuyerID: buyer.ID})
	require.NoError(t, err)

	svc, err := NewReviewService(db)
	require.NoError(t, err)

	// Undelivered orders cannot be reviewed.
	_, err = svc.Submit(ctx, SubmitReviewInput{OrderID: order.ID, AuthorID: buyer.ID, Rating: 5})
	require.ErrorIs(t, err, ErrReviewNotAllowed)

	stranger := createTestUser(t, db, "stranger@example.com", "stranger", models.RoleBuyer)
	_, err = svc.Submit(ctx, SubmitReviewInput{OrderID: order.ID, AuthorID: stranger.ID, Rating: 5})
	require.ErrorIs(t, err, ErrReviewNotAllowed)

	_, err = svc.Submit(ctx, SubmitReviewInput{OrderID: order.ID, AuthorID: buyer.ID, Rating: 0})
	require.ErrorIs(t, err, ErrInvalidRating)
	_, err = svc.Submit(ctx, SubmitReviewInput{OrderID: order.ID, AuthorID: buyer.ID, Rating: 6})
	require.ErrorIs(t, err, ErrInvalidRating)
}

func TestReviewSummary(t *testing.T) {
	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)
	buyerA := createTestUser(t, db, "a@example.com", "buyer_a", models.RoleBuyer)
	buyerB := createTestUser(t, db, "b@example.com", "buyer_b", models.RoleBuyer)

	svc, err := NewReviewService(db)
	require.NoError(t, err)
	ctx := context.Background()

	for i, buyer := range []*models.User{buyerA, buyerB} {
		listing := createTestListing(t, db, seller.ID, 5000)
		order := deliveredOrder(t, db, buyer, seller, listing)
		_, err := svc.Submit(ctx, SubmitReviewInput{OrderID: order.ID, AuthorID: buyer.ID, Rating: 3 + i*2})
		require.NoError(t, err)
	}

	summary, err := svc.Summary(ctx, seller.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, summary.Count)
	require.InDelta(t, 4.0, summary.Average, 0.001)

	reviews, err := svc.ForUser(ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	// A user with no reviews gets an empty summary, not an error.
	empty, err := svc.Summary(ctx, buyerA.ID)
	require.NoError(t, err)
	require.Zero(t, empty.Count)
	require.Zero(t, empty.Average)
}
