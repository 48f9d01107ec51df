package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"livetiming/internal/microservices/http-api/middleware"
	"livetiming/internal/microservices/websocket"
)

type RouterConfig struct {
	Status    *StatusHandler
	Hub       *websocket.Hub
	WebSocket websocket.HandlerConfig
	Logger    *slog.Logger
}

// NewRouter wires the subscriber endpoint, health check and status API
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(cfg.Logger))

	r.GET("/healthz", cfg.Status.Health)
	r.GET("/ws", websocket.WSHandler(cfg.Hub, cfg.WebSocket))

	api := r.Group("/api")
	api.Use(middleware.CORS(cfg.WebSocket.AllowedOrigins))
	cfg.Status.RegisterRoutes(api)

	return r
}
