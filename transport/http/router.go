package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/service"
)

type routerConfig struct {
	logger      *slog.Logger
	metrics     http.Handler
	healthCheck func(context.Context) error
}

// RouterOption configures SetupRouter
type RouterOption func(*routerConfig)

// WithLogger sets the logger used by the request logging middleware.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(c *routerConfig) { c.logger = logger }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) RouterOption {
	return func(c *routerConfig) { c.metrics = h }
}

// WithHealthCheck makes /healthcheck report 503 when check fails.
func WithHealthCheck(check func(context.Context) error) RouterOption {
	return func(c *routerConfig) { c.healthCheck = check }
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, opts ...RouterOption) *gin.Engine {
	cfg := routerConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("component", "http")

	router := gin.New()
	router.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(logger))

	handlers := NewAuthHandlers(authService, logger, cfg.healthCheck)

	router.GET("/healthcheck", handlers.Healthcheck)
	router.GET("/.well-known/jwks.json", handlers.JWKS)
	if cfg.metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.metrics))
	}

	router.GET("/users/:user_id/nonce", handlers.Nonce)
	router.POST("/auth", handlers.Login)

	// Protected routes
	protected := router.Group("/")
	protected.Use(AuthMiddleware(authService, logger))
	{
		protected.GET("/auth/me", handlers.Me)
		protected.GET("/auth/verify", handlers.Verify)
	}

	return router
}
