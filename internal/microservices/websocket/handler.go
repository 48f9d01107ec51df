package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// HTTP upgrade handler to WebSocket connections

type HandlerConfig struct {
	// AllowedOrigins lists browser origins allowed to subscribe; "*" allows any.
	// Requests without an Origin header (non-browser clients) are always accepted.
	AllowedOrigins []string
	// Limiter bounds the upgrade rate; nil means unlimited
	Limiter    *rate.Limiter
	SendBuffer int
}

func newUpgrader(allowed []string) *websocket.Upgrader {
	allowAll := false
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		origins[o] = struct{}{}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			_, ok := origins[strings.TrimRight(origin, "/")]
			return ok
		},
	}
}

// WSHandler: upgrade an HTTP request to a subscriber connection and register it with the hub
func WSHandler(hub *Hub, cfg HandlerConfig) gin.HandlerFunc {
	upgrader := newUpgrader(cfg.AllowedOrigins)
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}

	return func(c *gin.Context) {
		if cfg.Limiter != nil && !cfg.Limiter.Allow() {
			hub.logger.Warn("subscriber_rate_limited", "remote_addr", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
			return
		}

		// Upgrade writes its own error response (403 on a rejected origin)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.Warn("subscriber_upgrade_failed",
				"remote_addr", c.ClientIP(),
				"origin", c.Request.Header.Get("Origin"),
				"error", err.Error(),
			)
			c.Abort()
			return
		}

		client := NewClient(uuid.NewString(), conn, hub, sendBuffer)
		hub.Register(client)

		go client.ReadPump()
		go client.WritePump()
	}
}
