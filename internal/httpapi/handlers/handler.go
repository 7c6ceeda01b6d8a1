package handlers

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/finsight/platform/internal/analysis"
	"github.com/finsight/platform/internal/common"
	"github.com/finsight/platform/internal/config"
	"github.com/finsight/platform/internal/httpapi/middleware"
	"github.com/finsight/platform/internal/store/redisstore"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	DB    *gorm.DB
	Cfg   config.Config
	Redis *redisstore.Store
	Svc   *analysis.Service
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, svc *analysis.Service) *Handler {
	return &Handler{DB: db, Cfg: cfg, Redis: rds, Svc: svc}
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"worker_id": fmt.Sprintf("%d", os.Getpid()),
	})
}

func failUnauthorized(c *gin.Context) {
	common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
}
