package server

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thereayou/roomcoord/internal/handlers"
	"github.com/thereayou/roomcoord/internal/middleware"
	"github.com/thereayou/roomcoord/pkg/auth"
)

type Endpoints struct {
	JWT       *auth.JWTManager
	Redis     *redis.Client
	WebSocket *handlers.WebSocketHandler
	Messages  *handlers.HTTPMessageHandler
	Health    *handlers.HealthHandler
}

func APIEndpoints(r *gin.Engine, e Endpoints) {
	r.GET("/healthz", e.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket
	r.GET("/ws/rooms/:room", middleware.WSAuthMiddleware(e.JWT, e.Redis), e.WebSocket.HandleWebSocket)

	// API endpoints
	api := r.Group("/api/v1", middleware.AuthMiddleware(e.JWT, e.Redis))
	{
		api.GET("/rooms/:room/channels/:id/messages", e.Messages.GetChannelMessages)
	}
}
