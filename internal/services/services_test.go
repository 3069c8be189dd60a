package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tradepost/tradepost/internal/database"
	"github.com/tradepost/tradepost/internal/models"
	"github.com/tradepost/tradepost/pkg/crypto"
	"github.com/tradepost/tradepost/pkg/mail"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// captureMailer records outbound mail instead of delivering it.
type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.messages)
}

func createTestUser(t *testing.T, db *gorm.DB, email, username string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("password123")
	require.NoError(t, err)

	user := &models.User{
		Email:        email,
		Username:     username,
		DisplayName:  username,
		PasswordHash: hash,
		Role:         role,
		IsVerified:   true,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestListing(t *testing.T, db *gorm.DB, sellerID string, priceCents int64) *models.Listing {
	t.Helper()

	listing := &models.Listing{
		SellerID:   sellerID,
		Title:      "Vintage road bike",
		PriceCents: priceCents,
		Currency:   "EUR",
		Category:   "sports",
		Status:     models.ListingActive,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

// testClock is a mutable time source shared between a service and its test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}
