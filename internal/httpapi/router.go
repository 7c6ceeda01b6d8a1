package httpapi

import (
	"net/http"

	"github.com/finsight/platform/internal/analysis"
	"github.com/finsight/platform/internal/common"
	"github.com/finsight/platform/internal/config"
	"github.com/finsight/platform/internal/httpapi/handlers"
	"github.com/finsight/platform/internal/httpapi/middleware"
	"github.com/finsight/platform/internal/store/redisstore"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, svc *analysis.Service) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.Usage(svc))

	h := handlers.NewHandler(db, cfg, rds, svc)

	r.GET("/ping", h.Ping)
	r.GET("/health", h.Health)

	// CRUD users register
	r.POST("/users", h.CreateUser)

	// auth
	r.POST("/login", h.Login)
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.Use(middleware.RateLimit(rds, cfg.RequestsPerMinute))
	authGroup.GET("/me", h.Me)
	// Analysis jobs (JWT required)
	authGroup.POST("/analyze", h.AnalyzeDocument)
	authGroup.GET("/jobs/:job_id", h.GetJob)
	authGroup.POST("/jobs/:job_id/cancel", h.CancelJob)
	authGroup.GET("/stats/usage", h.UsageStats)
	return r
}
