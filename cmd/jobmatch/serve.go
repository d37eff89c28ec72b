package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/job-matcher/internal/app"
	"github.com/jonathan/job-matcher/internal/server"
	"github.com/jonathan/job-matcher/internal/server/ratelimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that accepts workflow submissions and serves status,
progress and results. With the local engine, runs interrupted by a previous
shutdown are resumed from their last checkpoint.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if err := cfg.RequireAuth(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	if a.Local != nil {
		resumed, err := a.Local.Resume(ctx)
		if err != nil {
			return fmt.Errorf("failed to resume runs: %w", err)
		}
		if resumed > 0 {
			logger.Info("resumed interrupted runs", zap.Int("count", resumed))
		}
	}

	srv, err := server.New(server.Options{
		Port:            cfg.Server.Port,
		Service:         a.Service,
		Tokens:          server.NewJWTService(cfg.Auth).AsTokenValidator(),
		StageSecret:     cfg.Auth.StageSecret,
		RateLimiter:     ratelimit.NewLimiter(ratelimit.FromServerConfig(cfg.Server)),
		Logger:          logger,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}
