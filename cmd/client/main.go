package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/emojichat/internal/client"
	"github.com/vovakirdan/emojichat/internal/config"
	"github.com/vovakirdan/emojichat/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "emojichat: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	def := config.Default()

	cmd := &cobra.Command{
		Use:           "emojichat",
		Short:         "Terminal client: every line you type is sent as an emoji",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := config.Load(nil, configPath, cmd.Flags(), "client")
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to config file")
	flags.String("url", def.Client.URL, "relay WebSocket URL")
	flags.String("protocol", def.Client.Protocol, "WebSocket sub-protocol")
	flags.String("name", def.Client.Name, "display name attached to outgoing messages")
	flags.Duration("dial-timeout", def.Client.DialTimeout, "connection establishment timeout")
	flags.Bool("reconnect", def.Client.Reconnect, "reconnect with backoff after a disconnect")
	flags.String("log-level", def.LogLevel, "log level (debug, info, warn, error)")

	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	session := client.New(ctx, client.Options{
		URL:          cfg.Client.URL,
		Protocol:     cfg.Client.Protocol,
		Name:         cfg.Client.Name,
		DialTimeout:  cfg.Client.DialTimeout,
		WriteTimeout: cfg.Client.WriteTimeout,
		Logger:       logger,
	})
	defer session.Close()

	disconnected := make(chan struct{}, 1)
	session.SetHandler(client.Handler{
		OnConnected: func() {
			fmt.Printf("Connected to %s as %s\n", cfg.Client.URL, session.Name())
		},
		OnDisconnected: func(err error) {
			if err != nil {
				fmt.Printf("Disconnected: %v\n", err)
			} else {
				fmt.Println("Disconnected")
			}
			select {
			case disconnected <- struct{}{}:
			default:
			}
		},
		OnMessage: func(author, text string) {
			fmt.Printf("%s: %s\n", author, text)
		},
	})

	fmt.Println("Type an emoji and press Enter to send. Ctrl+C to exit.")

	runErr := make(chan error, 1)
	if cfg.Client.Reconnect {
		go func() { runErr <- session.Run(ctx, client.NewBackoff(cfg.Client.Backoff)) }()
	} else {
		if err := session.Connect(ctx); err != nil {
			return err
		}
		go func() {
			select {
			case <-disconnected:
				runErr <- errors.New("connection lost")
			case <-ctx.Done():
				runErr <- ctx.Err()
			}
		}()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case err := <-runErr:
			if errors.Is(err, context.Canceled) || errors.Is(err, client.ErrClosed) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if !session.Send(text) {
				fmt.Println("(not connected, message dropped)")
			}
		}
	}
}
