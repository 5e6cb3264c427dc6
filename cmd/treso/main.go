package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"treso/internal/cli"
	apphttp "treso/internal/http"
	"treso/internal/log"
)

func main() {
	cfg, logger := cli.LoadConfig(log.ComponentApp)
	be := cli.InitBackend(context.Background(), logger, cfg, nil)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Service:            be.Service,
		Feed:               be.Hub,
		Logger:             logger,
		CacheTTL:           cfg.CacheTTL,
		CacheSize:          cfg.CacheSize,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Ready: func(ctx context.Context) error {
			_, err := be.Service.ListProjects(ctx, cfg.SeedOrganizationID)
			return err
		},
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	})

	logger.Info("Starting treso server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		<-done
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	m := srv.Metrics()
	logger.Info("Server stopped gracefully",
		"requests", m.TotalRequests,
		"server_errors", m.ServerErrors,
		"avg_response_time", m.AverageResponseTime.String())
}
