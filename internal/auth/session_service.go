package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/models"
	"github.com/tradepost/tradepost/pkg/crypto"
)

const (
	// DefaultRefreshTokenTTL is the fallback refresh session lifetime.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	// DefaultRefreshTokenLength is the number of random bytes per refresh token.
	DefaultRefreshTokenLength = 48
)

var (
	// ErrSessionNotFound indicates the refresh token matches no session.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionExpired indicates the session exists but can no longer be used.
	ErrSessionExpired = errors.New("session: expired or revoked")
)

// TokenPair bundles the credentials returned to a client after login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionMetadata captures request attributes recorded with each session.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionConfig customises the SessionService.
type SessionConfig struct {
	RefreshTTL    time.Duration
	RefreshLength int
	Clock         func() time.Time
}

// SessionService manages refresh-token sessions persisted in the database.
type SessionService struct {
	db        *gorm.DB
	jwt       *JWTService
	ttl       time.Duration
	tokenSize int
	now       func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, jwt *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session: db is required")
	}
	if jwt == nil {
		return nil, errors.New("session: jwt service is required")
	}

	ttl := cfg.RefreshTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	size := cfg.RefreshLength
	if size <= 0 {
		size = DefaultRefreshTokenLength
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &SessionService{db: db, jwt: jwt, ttl: ttl, tokenSize: size, now: now}, nil
}

// CreateSession persists a new session for the user and issues a token pair.
func (s *SessionService) CreateSession(user *models.User, meta SessionMetadata) (TokenPair, *models.Session, error) {
	if user == nil || user.ID == "" {
		return TokenPair{}, nil, errors.New("session: user is required")
	}

	refreshToken, err := crypto.GenerateToken(s.tokenSize)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session: generate refresh token: %w", err)
	}

	session := models.Session{
		UserID:           user.ID,
		RefreshTokenHash: hashRefreshToken(refreshToken),
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		ExpiresAt:        s.now().Add(s.ttl),
	}

	if err := s.db.Create(&session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session: create: %w", err)
	}

	access, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:    user.ID,
		SessionID: session.ID,
		Role:      string(user.Role),
	})
	if err != nil {
		return TokenPair{}, nil, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refreshToken}, &session, nil
}

// RefreshSession rotates the refresh token and issues a fresh token pair.
func (s *SessionService) RefreshSession(refreshToken string) (TokenPair, *models.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, nil, ErrSessionNotFound
	}

	var session models.Session
	if err := s.db.Take(&session, "refresh_token_hash = ?", hashRefreshToken(refreshToken)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, nil, ErrSessionNotFound
		}
		return TokenPair{}, nil, fmt.Errorf("session: lookup: %w", err)
	}

	now := s.now()
	if !session.Active(now) {
		return TokenPair{}, nil, ErrSessionExpired
	}

	var user models.User
	if err := s.db.Take(&user, "id = ?", session.UserID).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session: load user: %w", err)
	}

	newToken, err := crypto.GenerateToken(s.tokenSize)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session: rotate refresh token: %w", err)
	}

	updates := map[string]any{
		"refresh_token_hash": hashRefreshToken(newToken),
		"expires_at":         now.Add(s.ttl),
		"last_used_at":       now,
	}
	if err := s.db.Model(&session).Updates(updates).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session: rotate: %w", err)
	}

	access, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:    user.ID,
		SessionID: session.ID,
		Role:      string(user.Role),
	})
	if err != nil {
		return TokenPair{}, nil, err
	}

	return TokenPair{AccessToken: access, RefreshToken: newToken}, &session, nil
}

// RevokeSession marks a single session as revoked.
func (s *SessionService) RevokeSession(sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrSessionNotFound
	}

	now := s.now()
	result := s.db.Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", now)
	if result.Error != nil {
		return fmt.Errorf("session: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeAllForUser revokes every active session belonging to a user.
// Used after password resets so stolen refresh tokens die with the password.
func (s *SessionService) RevokeAllForUser(userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("session: user id is required")
	}

	result := s.db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return 0, fmt.Errorf("session: revoke all: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CleanupExpired deletes sessions that are expired or revoked.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR revoked_at IS NOT NULL", s.now()).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func hashRefreshToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
