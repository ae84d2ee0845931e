package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Limiter is satisfied by cache.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, int64, error)
}

// RateLimit rejects requests with 429 once the limiter refuses the key built
// from the request. Limiter errors let the request through.
func RateLimit(limiter Limiter, keyFn func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := keyFn(c)
		allowed, count, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limiter unavailable", "key", key, "error", err)
			c.Next()
			return
		}
		if !allowed {
			c.Header("X-RateLimit-Count", strconv.FormatInt(count, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "too many invitations, try again later"})
			return
		}
		c.Next()
	}
}

// FamilyKey keys the limit on the :uuid route parameter.
func FamilyKey(c *gin.Context) string {
	return "invite:family:" + c.Param("uuid")
}
