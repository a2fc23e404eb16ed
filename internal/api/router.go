// Package api serves the presentation layer over HTTP: session lifecycle,
// detections, feedback, warnings and per-user thresholds.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// AdjustmentLister reads threshold adjustment history, newest first.
type AdjustmentLister interface {
	ListAdjustments(ctx context.Context, userID string, limit int) ([]threshold.Adjustment, error)
}

// Options wires the router.
type Options struct {
	Manager *orchestrator.Manager
	History AdjustmentLister // optional
	Metrics http.Handler     // optional
	Logger  *slog.Logger
}

type handlers struct {
	manager *orchestrator.Manager
	history AdjustmentLister
	logger  *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) *gin.Engine {
	logger := logging.NewComponentLogger(opts.Logger, "api")
	h := &handlers{manager: opts.Manager, history: opts.History, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", h.health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", h.openSession)
		v1.DELETE("/sessions/:id", h.closeSession)
		v1.POST("/sessions/:id/detections", h.ingest)
		v1.POST("/sessions/:id/feedback", h.feedback)
		v1.POST("/sessions/:id/seek", h.seek)
		v1.POST("/sessions/:id/media", h.mediaChanged)
		v1.GET("/sessions/:id/warnings", h.warnings)

		v1.GET("/users/:user/thresholds", h.exportThresholds)
		v1.PUT("/users/:user/thresholds", h.importThresholds)
		v1.GET("/users/:user/adjustments", h.adjustments)
	}
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
			logging.Duration("duration", time.Since(start)))
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.manager.Len()})
}
