package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/emojichat/internal/config"
	"github.com/vovakirdan/emojichat/internal/core"
)

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Connections int         `json:"connections"`
	Peers       []core.Info `json:"peers"`
}

// NewRouter builds the gin engine serving the health and stats routes.
func NewRouter(relay *core.Relay, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/stats", statsHandler(relay))

	return router
}

// NewServer builds an HTTP server. The WebSocket endpoint sits on the plain mux because
// gin's response writer refuses the hijack the upgrade needs.
func NewServer(relay *core.Relay, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	router := NewRouter(relay, logger)

	wsPath := cfg.WSPath
	if wsPath == "" {
		wsPath = "/"
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/health", router)
	mux.Handle("/stats", router)
	mux.Handle(wsPath, NewWSHandler(relay, cfg, logger))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

func statsHandler(relay *core.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, StatsResponse{
			Connections: relay.Count(),
			Peers:       relay.Connections(),
		})
	}
}
