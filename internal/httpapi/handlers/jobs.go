package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finsight/platform/internal/analysis"
	"github.com/finsight/platform/internal/common"
	"github.com/gin-gonic/gin"
)

// GetJob polls job status by ID. Foreign jobs are hidden behind 404.
func (h *Handler) GetJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		failUnauthorized(c)
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.Svc.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		// DB trouble: terminal results are mirrored in Redis, try that
		// before giving up
		if cached, ok := h.cachedJob(c, jobID, uid); ok {
			common.OK(c, gin.H{"job": cached})
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{"job": j})
}

func (h *Handler) cachedJob(c *gin.Context, jobID string, uid uint64) (*analysis.Job, bool) {
	if h.Redis == nil {
		return nil, false
	}
	b, ok, err := h.Redis.GetJobResult(c.Request.Context(), jobID)
	if err != nil || !ok {
		return nil, false
	}
	var cached analysis.CachedResult
	if err := json.Unmarshal(b, &cached); err != nil || cached.Job == nil {
		return nil, false
	}
	if cached.UserID != uid {
		return nil, false
	}
	return cached.Job, true
}

// CancelJob marks desired cancellation; honored at the next attempt boundary.
func (h *Handler) CancelJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		failUnauthorized(c)
		return
	}
	jobID := c.Param("job_id")

	j, err := h.Svc.GetStatus(c.Request.Context(), jobID)
	if err != nil || j.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	if err := h.Svc.RequestCancel(c.Request.Context(), jobID); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"job_id": jobID, "cancel_requested": true})
}
