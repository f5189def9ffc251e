package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/dubwise/dubwise-backend/internal/observability"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/services"
)

// MetricsHandler refreshes job-level metrics from the database before serving
// the exposition, so scrapes see current gauges without a background poller.
type MetricsHandler struct {
	collector *services.MetricsService
	metrics   *observability.Metrics
	log       *logger.Logger
}

func NewMetricsHandler(collector *services.MetricsService, metrics *observability.Metrics, baseLog *logger.Logger) *MetricsHandler {
	return &MetricsHandler{
		collector: collector,
		metrics:   metrics,
		log:       baseLog.With("handler", "MetricsHandler"),
	}
}

// GET /metrics
func (h *MetricsHandler) Serve(c *gin.Context) {
	if err := h.collector.Collect(c.Request.Context()); err != nil {
		// Serve whatever the registry holds rather than failing the scrape.
		h.log.Warn("Metrics collection failed", "error", err)
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
