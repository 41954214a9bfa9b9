package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth            *AuthHandler
	Documents       *DocumentHandler
	Transformations *TransformationHandler
	Presets         *PresetHandler
	WS              *WSHandler
}

// NewRouter wires the versioned HTTP surface. Health stays public; the
// /ws handshake authenticates itself; everything else under /api runs
// behind the auth middleware.
func NewRouter(
	h Handlers,
	jwtSecret string,
	revocations middleware.RevocationChecker,
	limiter *middleware.RateLimiter,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ws", h.WS.Serve)

	api := r.Group("/api")

	authPublic := api.Group("/auth")
	authPublic.Use(limiter.Limit("auth"))
	authPublic.POST("/register", h.Auth.Register)
	authPublic.POST("/login", h.Auth.Login)
	authPublic.POST("/refresh", h.Auth.Refresh)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(jwtSecret, revocations))

	protected.POST("/auth/logout", h.Auth.Logout)
	protected.GET("/auth/me", h.Auth.Me)

	docs := protected.Group("/documents")
	docs.Use(limiter.Limit("documents"))
	docs.POST("/upload", h.Documents.Upload)
	docs.GET("", h.Documents.List)
	docs.GET("/:id", h.Documents.Get)
	docs.GET("/:id/transformations", h.Transformations.ListByDocument)
	docs.DELETE("/:id", h.Documents.Delete)

	transforms := protected.Group("/transformations")
	transforms.Use(limiter.Limit("transformations"))
	transforms.POST("", h.Transformations.Create)
	transforms.GET("", h.Transformations.List)
	transforms.GET("/:id", h.Transformations.Get)
	transforms.GET("/:id/status", h.Transformations.Status)
	transforms.POST("/:id/cancel", h.Transformations.Cancel)

	presets := protected.Group("/transformation-presets")
	presets.Use(limiter.Limit("default"))
	presets.GET("", h.Presets.List)
	presets.POST("", h.Presets.Create)
	presets.PATCH("/:id", h.Presets.Update)
	presets.DELETE("/:id", h.Presets.Delete)

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
