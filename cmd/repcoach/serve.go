package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/repcoach/pkg/api"
	"github.com/odvcencio/repcoach/pkg/logging"
	"github.com/odvcencio/repcoach/pkg/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the coach over HTTP",
		Long: `Starts the HTTP API:

  POST /v1/sessions                  start a conversation
  POST /v1/sessions/{id}/messages    send a message (stream=true for SSE)
  GET  /v1/sessions/{id}/messages    chat history
  GET  /v1/sessions/{id}/workout     current workout
  GET  /v1/sessions/{id}/events      completed turns as SSE
  GET  /v1/sessions/{id}/ws          websocket chat
  POST /v1/quick-action              single tool call
  GET  /v1/tools                     available tools`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Address = addr
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return cmd
}

func runServe(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger := a.cfg, a.logger

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(cfg.Telemetry.ServiceName, version)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(api.ServerConfig{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Coach:        rt.agent,
		EventBus:     rt.bus,
		BusPrefix:    cfg.Bus.SubjectPrefix,
		Logger:       logger,
		Metrics:      cfg.Telemetry.MetricsEnabled,
		PingInterval: cfg.Server.PingInterval,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.agent.RunSweeper(ctx, cfg.Agent.SessionIdleTimeout, cfg.Agent.SweepInterval)
	})
	g.Go(func() error {
		return logging.Audit(ctx, rt.hub, rt.audit, logger)
	})
	g.Go(func() error {
		return srv.Start(ctx)
	})

	logger.Info("repcoach serving",
		zap.String("addr", srv.Addr()),
		zap.String("version", version),
		zap.String("db", cfg.Storage.Path),
		zap.Bool("nats", cfg.Bus.NATSURL != ""),
		zap.Bool("models", rt.tiers.Available()),
	)
	err = g.Wait()
	logger.Info("repcoach stopped")
	return err
}
