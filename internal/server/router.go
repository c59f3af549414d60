package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/ligabpi/internal/handlers"
	"github.com/thereayou/ligabpi/internal/metrics"
	"github.com/thereayou/ligabpi/internal/middleware"
	"github.com/thereayou/ligabpi/pkg/auth"
)

type Endpoints struct {
	Auth      *handlers.AuthHandler
	Documents *handlers.DocumentHandler
	WebSocket *handlers.WebSocketHandler
	Health    gin.HandlerFunc
	Metrics   http.Handler
	JWT       *auth.JWTManager
	Blacklist middleware.TokenBlacklist
}

func APIEndpoints(r *gin.Engine, e Endpoints) {
	required := middleware.AuthMiddleware(e.JWT, e.Blacklist)
	optional := middleware.OptionalAuth(e.JWT, e.Blacklist)

	r.GET("/healthz", e.Health)
	r.GET("/metrics", gin.WrapH(e.Metrics))

	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", e.Auth.Register)
		authGroup.POST("/login", e.Auth.Login)
		authGroup.POST("/logout", required, e.Auth.Logout)
	}

	// API endpoints
	api := r.Group("/api/v1")
	{
		api.GET("/account/me", required, e.Auth.Me)

		docs := api.Group("/collections/:collection/documents")
		docs.GET("", optional, e.Documents.List)
		docs.POST("", required, e.Documents.Create)
		docs.GET("/:id", optional, e.Documents.Get)
		docs.PATCH("/:id", required, e.Documents.Patch)

		api.GET("/realtime", middleware.WSAuthMiddleware(e.JWT, e.Blacklist), e.WebSocket.HandleWebSocket)
	}
}

func requestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Request(route, strconv.Itoa(c.Writer.Status()))
	}
}
