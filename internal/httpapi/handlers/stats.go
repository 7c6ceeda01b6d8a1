package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/finsight/platform/internal/common"
	"github.com/gin-gonic/gin"
)

// UsageStats aggregates the caller's request log over a trailing window of days.
func (h *Handler) UsageStats(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		failUnauthorized(c)
		return
	}

	days := 30
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			common.Fail(c, http.StatusBadRequest, 10006, "days must be 1-365")
			return
		}
		days = n
	}

	stats, err := h.Svc.UsageStats(c.Request.Context(), uid, time.Duration(days)*24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{
		"period_days": days,
		"stats":       stats,
	})
}
