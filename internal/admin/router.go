package admin

import (
	"context"

	"github.com/gin-gonic/gin"

	"herald/internal/config"
	"herald/internal/logger"
	"herald/pkg/middleware"
	"herald/pkg/ratelimit"
	"herald/pkg/tracing"
)

// NewRouter assembles the ops server routes. ctx bounds background work of
// the middleware chain.
func NewRouter(ctx context.Context, cfg config.ServerConfig, serviceName string, h *Handler, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(tracing.GinMiddleware(serviceName))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RecoveryMiddleware(log))

	var api []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		rl := ratelimit.DefaultConfig()
		rl.RPS = cfg.RateLimit.RPS
		rl.Burst = cfg.RateLimit.Burst
		api = append(api, ratelimit.RateLimitMiddleware(ctx, rl))
	}

	h.RegisterRoutes(router, api...)
	return router
}
