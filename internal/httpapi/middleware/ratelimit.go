package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/finsight/platform/internal/common"
	"github.com/finsight/platform/internal/store/redisstore"
	"github.com/gin-gonic/gin"
)

// RateLimit applies a fixed-window per-caller limit backed by Redis.
// Fails open on Redis errors so a cache outage never takes the API down.
func RateLimit(store *redisstore.Store, requestsPerMin int) gin.HandlerFunc {
	if requestsPerMin <= 0 {
		requestsPerMin = 60
	}
	return func(c *gin.Context) {
		scope := c.ClientIP()
		if v, ok := c.Get(UserIDKey); ok {
			if uid, ok := v.(uint64); ok {
				scope = fmt.Sprintf("u%d", uid)
			}
		}

		window := time.Now().Unix() / 60
		key := redisstore.RateLimitKey(scope, window)

		count, err := store.IncrWithExpiry(c.Request.Context(), key, 2*time.Minute)
		if err != nil {
			c.Next()
			return
		}

		remaining := requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(requestsPerMin))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > int64(requestsPerMin) {
			c.Header("Retry-After", "60")
			common.Fail(c, http.StatusTooManyRequests, 42900, "too many requests")
			c.Abort()
			return
		}

		c.Next()
	}
}
