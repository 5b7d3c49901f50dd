package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/personly/channels-server/internal/auth"
	"github.com/personly/channels-server/internal/config"
	"github.com/personly/channels-server/internal/core"
	"github.com/personly/channels-server/internal/metrics"
	"github.com/personly/channels-server/internal/store"
)

// NewServer builds the HTTP server: websocket endpoint, REST surface,
// health and metrics.
func NewServer(hub *core.Hub, verifier *auth.Verifier, lifecycle *core.Lifecycle, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(metrics.GinMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wsHandler := NewWSHandler(hub, verifier, cfg, logger)
	router.GET("/ws", wsHandler.Handle)

	channelHandlers := NewChannelHandlers(st, lifecycle, hub, logger)

	api := router.Group("/api", AuthMiddleware(verifier, logger))
	{
		api.GET("/channels", channelHandlers.ListChannels)
		api.GET("/channels/:id/messages", channelHandlers.ListMessages)
	}

	admin := api.Group("/admin", RequireRole("admin"))
	{
		admin.POST("/channels", channelHandlers.CreateChannel)
		admin.POST("/channels/:id/members", channelHandlers.AddMember)
		admin.DELETE("/channels/:id/members/:userId", channelHandlers.RemoveMember)
		admin.PUT("/channels/:id/slowmode", channelHandlers.SetSlowMode)
		admin.DELETE("/messages/:id", channelHandlers.ModerateDelete)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
