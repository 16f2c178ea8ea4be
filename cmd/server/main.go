package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/emojichat/internal/app"
	"github.com/vovakirdan/emojichat/internal/config"
	"github.com/vovakirdan/emojichat/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	def := config.Default()

	cmd := &cobra.Command{
		Use:           "emojichat-server",
		Short:         "WebSocket relay that fans emoji messages out to every other client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New(def.LogLevel, def.LogFormat)
			cfg, path, err := config.Load(bootLogger, configPath, cmd.Flags(), "")
			if err != nil {
				bootLogger.Error().Err(err).Msg("load config")
				return err
			}
			logger := log.New(cfg.LogLevel, cfg.LogFormat)
			logger.Debug().Str("config", path).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().Str("addr", cfg.Addr).Str("path", cfg.WSPath).Str("protocol", cfg.Protocol).Msg("starting emojichat relay")
			if err := app.New(&cfg, logger).Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return fmt.Errorf("run: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to config file")
	flags.String("addr", def.Addr, "HTTP listen address")
	flags.String("ws-path", def.WSPath, "WebSocket endpoint path")
	flags.String("protocol", def.Protocol, "WebSocket sub-protocol to require")
	flags.Duration("read-header-timeout", def.ReadHeaderTimeout, "HTTP read header timeout")
	flags.Duration("shutdown-timeout", def.ShutdownTimeout, "graceful shutdown timeout")
	flags.Duration("write-timeout", def.WriteTimeout, "per-peer write timeout during broadcast")
	flags.Duration("ping-interval", def.PingInterval, "keepalive ping interval, 0 disables")
	flags.Int("max-connections", def.MaxConnections, "maximum open connections, 0 means unlimited")
	flags.Int64("max-message-bytes", def.MaxMessageBytes, "largest accepted frame")
	flags.Int("messages-per-minute", def.MessagesPerMinute, "per-connection inbound rate limit, 0 disables")
	flags.String("log-level", def.LogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", def.LogFormat, "log format (console, json)")

	return cmd
}
