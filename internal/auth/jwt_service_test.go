package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "tradepost-test"})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		UserID:    "user-1",
		SessionID: "session-1",
		Role:      "buyer",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "session-1", claims.SessionID)
	require.Equal(t, "buyer", claims.Role)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	issuerSvc, err := NewJWTService(JWTConfig{Secret: "secret-a"})
	require.NoError(t, err)
	otherSvc, err := NewJWTService(JWTConfig{Secret: "secret-b"})
	require.NoError(t, err)

	token, err := issuerSvc.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	_, err = otherSvc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestAccessTokenExpiry(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret:         "secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestAccessTokenIssuerCheck(t *testing.T) {
	issuerSvc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "other-issuer"})
	require.NoError(t, err)
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "tradepost"})
	require.NoError(t, err)

	token, err := issuerSvc.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}
