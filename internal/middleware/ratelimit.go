package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tradepost/tradepost/internal/cache"
	"github.com/tradepost/tradepost/pkg/errors"
	"github.com/tradepost/tradepost/pkg/logger"
	"github.com/tradepost/tradepost/pkg/response"
)

// RateLimitConfig bounds request volume per client within a rolling window.
type RateLimitConfig struct {
	Limit  int64
	Window time.Duration
}

// RateLimit enforces a fixed-window counter per client IP and route. The
// counters live in the shared cache store, so the limit holds across
// replicas that share a database. Store failures let the request through;
// throttling is protection, not a gate.
func RateLimit(store cache.Store, cfg RateLimitConfig) gin.HandlerFunc {
	log := logger.WithModule("ratelimit")

	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", c.ClientIP(), c.FullPath())

		count, _, err := store.IncrementWithTTL(c.Request.Context(), key, cfg.Window)
		if err != nil {
			log.Warn("rate limit store unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > cfg.Limit {
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
