package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/gochat-relay/internal/bot"
	"github.com/Tyrowin/gochat-relay/internal/presence"
	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		port     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "gochat",
		Short:         "Real-time group chat relay with an inline Gemini bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.NewConfigFromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen address, e.g. :8080 (overrides SERVER_PORT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	config.Level = atomic
	return config.Build()
}

// run wires the relay together and blocks until a signal arrives or the HTTP
// server fails.
func run(ctx context.Context, cfg *server.Config) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gemini, err := bot.NewGeminiClient(ctx, bot.GeminiConfig{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
	}, log)
	if err != nil {
		return err
	}

	registry := presence.NewRegistry()
	hub := server.NewHub(registry, bot.NewOrchestrator(gemini, log), log)
	srv := server.NewServer(cfg, hub, log)
	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run()
		return nil
	})
	log.Info("Hub started and ready to manage WebSocket connections", zap.String("model", gemini.Model()))

	g.Go(func() error {
		if err := server.StartServer(httpServer, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")
		httpErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log)
		hubErr := hub.Shutdown(cfg.ShutdownTimeout)
		return errors.Join(httpErr, hubErr)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped cleanly")
	return nil
}
