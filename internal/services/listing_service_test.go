package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradepost/tradepost/internal/models"
)

func TestCreateListingDefaults(t *testing.T) {
	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)

	svc, err := NewListingService(db)
	require.NoError(t, err)

	listing, err := svc.Create(context.Background(), CreateListingInput{
		SellerID:   seller.ID,
		Title:      "  Mechanical keyboard  ",
		PriceCents: 4500,
		Currency:   "eur",
		Attributes: map[string]any{"switches": "brown"},
	})
	require.NoError(t, err)
	require.Equal(t, "Mechanical keyboard", listing.Title)
	require.Equal(t, "EUR", listing.Currency)
	require.Equal(t, "other", listing.Category)
	require.Equal(t, models.ListingActive, listing.Status)
	require.JSONEq(t, `{"switches":"brown"}`, string(listing.Attributes))
}

func TestCreateListingValidation(t *testing.T) {
	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)

	svc, err := NewListingService(db)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateListingInput{SellerID: seller.ID, Title: "   ", PriceCents: 100})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), CreateListingInput{SellerID: seller.ID, Title: "Lamp", PriceCents: 0})
	require.Error(t, err)
}

func TestUpdateListingOwnership(t *testing.T) {
	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)
	other := createTestUser(t, db, "other@example.com", "other", models.RoleSeller)
	listing := createTestListing(t, db, seller.ID, 2000)

	svc, err := NewListingService(db)
	require.NoError(t, err)

	title := "Road bike, serviced"
	_, err = svc.Update(context.Background(), listing.ID, other.ID, UpdateListingInput{Title: &title})
	require.ErrorIs(t, err, ErrNotListingOwner)

	price := int64(1800)
	updated, err := svc.Update(context.Background(), listing.ID, seller.ID, UpdateListingInput{Title: &title, PriceCents: &price})
	require.NoError(t, err)
	require.Equal(t, "Road bike, serviced", updated.Title)
	require.Equal(t, int64(1800), updated.PriceCents)
}

func TestUpdateSoldListingRejected(t *testing.T) {
	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)
	listing := createTestListing(t, db, seller.ID, 2000)
	require.NoError(t, db.Model(listing).Update("status", models.ListingSold).Error)

	svc, err := NewListingService(db)
	require.NoError(t, err)

	title := "New title"
	_, err = svc.Update(context.Background(), listing.ID, seller.ID, UpdateListingInput{Title: &title})
	require.ErrorIs(t, err, ErrListingUnavailable)
}

func TestWithdrawListing(t *testing.T) {
	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)
	listing := createTestListing(t, db, seller.ID, 2000)

	svc, err := NewListingService(db)
	require.NoError(t, err)

	require.NoError(t, svc.Withdraw(context.Background(), listing.ID, seller.ID))

	fresh, err := svc.Get(context.Background(), listing.ID)
	require.NoError(t, err)
	require.Equal(t, models.ListingWithdrawn, fresh.Status)

	// Reserved listings are locked by their pending order.
	reserved := createTestListing(t, db, seller.ID, 3000)
	require.NoError(t, db.Model(reserved).Update("status", models.ListingReserved).Error)
	err = svc.Withdraw(context.Background(), reserved.ID, seller.ID)
	require.ErrorIs(t, err, ErrListingUnavailable)
}

func TestSearchListings(t *testing.T) {
	db := openTestDB(t)
	seller := createTestUser(t, db, "seller@example.com", "seller", models.RoleSeller)

	svc, err := NewListingService(db)
	require.NoError(t, err)

	ctx := context.Background()
	for _, item := range []struct {
		title    string
		price    int64
		category string
		status   models.ListingStatus
	}{
		{"Road bike", 25000, "sports", models.ListingActive},
		{"Mountain bike", 40000, "sports", models.ListingActive},
		{"Bike helmet", 3000, "sports", models.ListingWithdrawn},
		{"Espresso machine", 12000, "home", models.ListingActive},
	} {
		listing := &models.Listing{
			SellerID:   seller.ID,
			Title:      item.title,
			PriceCents: item.price,
			Currency:   "EUR",
			Category:   item.category,
			Status:     item.status,
		}
		require.NoError(t, db.Create(listing).Error)
	}

	// Default search returns active listings only.
	results, total, err := svc.Search(ctx, SearchInput{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, results, 3)

	results, total, err = svc.Search(ctx, SearchInput{Query: "bike"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	for _, listing := range results {
		require.Equal(t, models.ListingActive, listing.Status)
	}

	results, _, err = svc.Search(ctx, SearchInput{MinPriceCents: 30000})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Mountain bike", results[0].Title)

	results, _, err = svc.Search(ctx, SearchInput{Category: "home"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Explicit status filter overrides the active-only default.
	results, _, err = svc.Search(ctx, SearchInput{Status: models.ListingWithdrawn})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Bike helmet", results[0].Title)

	// Pagination: page size 2 gives two pages for three active listings.
	results, total, err = svc.Search(ctx, SearchInput{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, results, 1)
}
