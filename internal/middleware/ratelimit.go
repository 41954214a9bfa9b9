package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter applies fixed-window counters keyed by {workspace, bucket}
// in Redis, so the limit holds across instances. Unauthenticated routes
// fall back to the client IP as the key.
type RateLimiter struct {
	rdb    *redis.Client
	limits map[string]int
	window time.Duration
	logger *zap.Logger
}

func NewRateLimiter(rdb *redis.Client, limits map[string]int, window time.Duration, logger *zap.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{rdb: rdb, limits: limits, window: window, logger: logger}
}

// Limit returns middleware for one bucket. A bucket without a configured
// limit uses "default"; no default means unlimited.
func (r *RateLimiter) Limit(bucket string) gin.HandlerFunc {
	limit, ok := r.limits[bucket]
	if !ok {
		limit = r.limits["default"]
	}

	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		subject := GetSubject(c)
		key := subject.WorkspaceID.String()
		if subject.WorkspaceID == uuid.Nil {
			key = c.ClientIP()
		}

		windowStart := time.Now().Unix() / int64(r.window.Seconds())
		counterKey := fmt.Sprintf("rl:%s:%s:%d", key, bucket, windowStart)

		count, err := r.rdb.Incr(c.Request.Context(), counterKey).Result()
		if err != nil {
			// Fail open: a broker blip must not take the API down.
			r.logger.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			r.rdb.Expire(c.Request.Context(), counterKey, r.window)
		}

		if count > int64(limit) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(r.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
