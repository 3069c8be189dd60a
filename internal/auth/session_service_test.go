package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tradepost/tradepost/internal/models"
)

func openSessionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Session{}))
	return db
}

func newSessionTestService(t *testing.T, db *gorm.DB, clock func() time.Time) *SessionService {
	t.Helper()

	jwtSvc, err := NewJWTService(JWTConfig{Secret: "secret", Clock: clock})
	require.NoError(t, err)

	svc, err := NewSessionService(db, jwtSvc, SessionConfig{Clock: clock})
	require.NoError(t, err)
	return svc
}

func sessionTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	user := &models.User{
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "x",
		Role:         models.RoleBuyer,
		IsVerified:   true,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestSessionRefreshRotatesToken(t *testing.T) {
	db := openSessionTestDB(t)
	svc := newSessionTestService(t, db, time.Now)
	user := sessionTestUser(t, db)

	pair, session, err := svc.CreateSession(user, SessionMetadata{IPAddress: "127.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, session.ID)

	rotated, _, err := svc.RefreshSession(pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The old refresh token is spent.
	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// The rotated one keeps working.
	_, _, err = svc.RefreshSession(rotated.RefreshToken)
	require.NoError(t, err)
}

func TestSessionRevocation(t *testing.T) {
	db := openSessionTestDB(t)
	svc := newSessionTestService(t, db, time.Now)
	user := sessionTestUser(t, db)

	pair, session, err := svc.CreateSession(user, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(session.ID))
	require.ErrorIs(t, svc.RevokeSession(session.ID), ErrSessionNotFound)

	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestRevokeAllForUser(t *testing.T) {
	db := openSessionTestDB(t)
	svc := newSessionTestService(t, db, time.Now)
	user := sessionTestUser(t, db)

	first, _, err := svc.CreateSession(user, SessionMetadata{})
	require.NoError(t, err)
	second, _, err := svc.CreateSession(user, SessionMetadata{})
	require.NoError(t, err)

	revoked, err := svc.RevokeAllForUser(user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, revoked)

	_, _, err = svc.RefreshSession(first.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
	_, _, err = svc.RefreshSession(second.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestCleanupExpiredSessions(t *testing.T) {
	db := openSessionTestDB(t)

	current := time.Now()
	clock := func() time.Time { return current }
	svc := newSessionTestService(t, db, clock)
	user := sessionTestUser(t, db)

	pair, _, err := svc.CreateSession(user, SessionMetadata{})
	require.NoError(t, err)

	// Nothing to remove while the session is live.
	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)

	current = current.Add(DefaultRefreshTokenTTL + time.Hour)

	removed, err = svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
}
