package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"escrowd/config"
	"escrowd/observability/logging"
	telemetry "escrowd/observability/otel"
	"escrowd/rpc"
)

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	var configPath string
	fs := newFlagSet("serve", &configPath)
	if ok, err := parseFlags(fs, args, stderr); !ok {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, logCloser, err := logging.Setup(cfg.Service, cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Service,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	n, err := newNode(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Error("close node", "error", err)
		}
	}()

	api, err := rpc.NewServer(n.engine, n.stream, rpc.Config{
		Auth: rpc.AuthConfig{
			HMACSecret: cfg.API.JWTSecret,
			Issuer:     cfg.API.JWTIssuer,
			Audience:   cfg.API.JWTAudience,
		},
		RateLimitPerSec: cfg.API.RateLimitPerSec,
		RateLimitBurst:  cfg.API.RateLimitBurst,
	}, logger.With("component", "rpc"))
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.API.ListenAddress,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.API.ReadTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		n.notifier.Run(workerCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("escrowd listening",
			"address", cfg.API.ListenAddress,
			"fee_bps", cfg.Escrow.FeeBps,
			"database", cfg.Database)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down escrowd")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	stopWorker()
	<-workerDone
	n.notifier.Flush(shutdownCtx)
	if pending := n.notifier.Pending(); pending > 0 {
		logger.Warn("undelivered events dropped at shutdown", "pending", pending)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown failed", "error", err)
	}
	return runErr
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.API.ShutdownTimeout > 0 {
		return cfg.API.ShutdownTimeout
	}
	return 10 * time.Second
}
