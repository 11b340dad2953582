package httpapi

import (
	"time"

	"kickback-engine/pkg/config"
	"kickback-engine/pkg/health"
	"kickback-engine/pkg/logger"
	"kickback-engine/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		middleware.NewAuthorizer,
	),
	fx.Invoke(registerOpsEndpoints),
)

// NewEngine builds the gin engine shared by every service module. Routes
// added later inherit the error, channel and access log middleware.
func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		accessLog(),
		middleware.Error(),
		middleware.Channel(),
	)
	return r
}

func registerOpsEndpoints(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/metrics" {
			return
		}
		logger.FromContext(c.Request.Context()).Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
