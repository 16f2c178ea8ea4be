package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/emojichat/internal/config"
	"github.com/vovakirdan/emojichat/internal/core"
	transporthttp "github.com/vovakirdan/emojichat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	relay           *core.Relay
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) *App {
	gin.SetMode(gin.ReleaseMode)

	relay := core.NewRelay(core.Options{
		WriteTimeout:   cfg.WriteTimeout,
		MaxConnections: cfg.MaxConnections,
	}, logger)
	server := transporthttp.NewServer(relay, cfg, logger)
	// Hijacked websocket connections are not tracked by Shutdown, close them ourselves.
	server.RegisterOnShutdown(func() { relay.Shutdown("server shutting down") })

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		relay:           relay,
		log:             logger,
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.relay.Shutdown("server error")
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}

		return <-serverErr
	}
}
