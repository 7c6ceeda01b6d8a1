package middleware

import (
	"log"
	"time"

	"github.com/finsight/platform/internal/analysis"
	"github.com/gin-gonic/gin"
)

// Usage appends one UsageRecord per request after the handler runs.
// Best-effort: a failed append is logged, never surfaced.
func Usage(svc *analysis.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		var uid uint64
		if v, ok := c.Get(UserIDKey); ok {
			uid, _ = v.(uint64)
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		var bytesIn int64
		if c.Request.ContentLength > 0 {
			bytesIn = c.Request.ContentLength
		}

		rec := &analysis.UsageRecord{
			UserID:     uid,
			Endpoint:   endpoint,
			StatusCode: c.Writer.Status(),
			DurationMs: time.Since(start).Milliseconds(),
			BytesIn:    bytesIn,
		}
		if err := svc.RecordUsage(c.Request.Context(), rec); err != nil {
			log.Printf("usage record failed endpoint=%s err=%v", endpoint, err)
		}
	}
}
