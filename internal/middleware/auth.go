package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/pkg/errors"
	"github.com/tradepost/tradepost/pkg/response"
)

// Keys under which authenticated request identity is stored on the gin context.
const (
	CtxUserIDKey    = "auth.user_id"
	CtxSessionIDKey = "auth.session_id"
	CtxRoleKey      = "auth.role"
	CtxClaimsKey    = "auth.claims"
)

// RequireAuth validates the Bearer access token and stores the caller's
// identity on the context. Requests without a valid token are rejected.
func RequireAuth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateAccessToken(token)
		if err != nil {
			response.Error(c, errors.ErrUnauthorized.WithInternal(err))
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxSessionIDKey, claims.SessionID)
		c.Set(CtxRoleKey, claims.Role)
		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" when the request is anonymous.
func UserID(c *gin.Context) string {
	value, _ := c.Get(CtxUserIDKey)
	id, _ := value.(string)
	return id
}

// SessionID returns the authenticated session id, or "".
func SessionID(c *gin.Context) string {
	value, _ := c.Get(CtxSessionIDKey)
	id, _ := value.(string)
	return id
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	// Browsers cannot set headers on websocket dials; allow the token as a
	// query parameter on those upgrades only.
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return strings.TrimSpace(c.Query("access_token"))
	}
	return ""
}
