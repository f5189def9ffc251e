package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/dubwise/dubwise-backend/internal/http/handlers"
	httpMW "github.com/dubwise/dubwise-backend/internal/http/middleware"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

type RouterConfig struct {
	APIPrefix string

	AuthMiddleware *httpMW.AuthMiddleware
	RateLimiter    *httpMW.RateLimiter
	Log            *logger.Logger

	UploadHandler  *httpH.UploadHandler
	AssetHandler   *httpH.AssetHandler
	JobHandler     *httpH.JobHandler
	MetricsHandler *httpH.MetricsHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health and metrics stay outside auth so probes and scrapers need no key.
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", cfg.MetricsHandler.Serve)
	}

	api := r.Group(cfg.APIPrefix)
	{
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireKey())
		}
		if cfg.RateLimiter != nil {
			api.Use(cfg.RateLimiter.Limit())
		}

		if cfg.UploadHandler != nil {
			api.POST("/upload/init", cfg.UploadHandler.Init)
			api.POST("/upload/complete", cfg.UploadHandler.Complete)
		}

		if cfg.AssetHandler != nil {
			api.GET("/assets/:id", cfg.AssetHandler.GetAsset)
			api.GET("/assets/:id/hls/master.m3u8", cfg.AssetHandler.GetMasterPlaylist)
		}

		if cfg.JobHandler != nil {
			api.GET("/jobs", cfg.JobHandler.ListJobs)
			api.POST("/jobs/translate", cfg.JobHandler.CreateTranslationJob)
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.POST("/jobs/:id/retry", cfg.JobHandler.RetryJob)
			api.DELETE("/jobs/:id", cfg.JobHandler.CancelJob)
		}
	}

	return r
}
