package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calmerge/internal/instrumentation"
	"github.com/teemow/calmerge/internal/logging"
	"github.com/teemow/calmerge/internal/planner"
	"github.com/teemow/calmerge/internal/server"
)

// metricsStartupTimeout bounds how long serve waits for the metrics port.
const metricsStartupTimeout = 5 * time.Second

func newServeCmd(global *globalOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh agendas on a schedule and serve them over HTTP",
		Long: `Rebuild the agenda of every configured user on the cron schedule given by
"refresh" in the config file, and serve on a dedicated port:

  - /metrics: Prometheus metrics (with METRICS_EXPORTER=prometheus, the default)
  - /healthz, /readyz, /healthz/detailed: health probes
  - /agenda?user=<id>: the latest agenda of a user

Instrumentation is configured through the environment:
  INSTRUMENTATION_ENABLED, METRICS_EXPORTER, TRACING_EXPORTER,
  OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG, OTEL_SERVICE_NAME`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := global.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.MetricsAddr = metricsAddr
			}
			return runServe(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address of the metrics and health server (overrides metrics_addr from the config)")

	return cmd
}

func runServe(ctx context.Context, a *app) error {
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := a.logger
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	svc, users, err := a.service(ctx, provider.Metrics())
	if err != nil {
		return err
	}

	refreshUsers := a.cfg.Users
	if len(refreshUsers) == 0 {
		refreshUsers = users.Users()
	}

	health := server.NewHealthChecker()
	refresher := planner.NewRefresher(svc, refreshUsers,
		planner.WithHorizon(a.cfg.HorizonDays),
		planner.WithObserver(health),
		planner.WithRefreshMetrics(provider.Metrics()),
		planner.WithRefreshLogger(logger),
	)

	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    a.cfg.MetricsAddr,
		InstrumentationProvider: provider,
		Health:                  health,
		Agendas:                 refresher,
		Logger:                  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
	case err := <-metricsErr:
		return fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(metricsStartupTimeout):
		return fmt.Errorf("metrics server startup timed out")
	}

	if err := refresher.Start(ctx, a.cfg.RefreshCron); err != nil {
		shutdownServer(metricsServer, logger)
		return err
	}
	logger.Info("calmerge serving",
		slog.String("metrics_addr", metricsServer.Addr()),
		slog.String("refresh", a.cfg.RefreshCron),
		logging.Count(len(refreshUsers)),
		slog.Any("instrumentation", instrConfig),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-metricsErr:
		if ok && err != nil {
			runErr = fmt.Errorf("metrics server stopped: %w", err)
		}
	}

	health.MarkShuttingDown()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer stopCancel()
	refresher.Stop(stopCtx)
	shutdownServer(metricsServer, logger)

	return runErr
}

func shutdownServer(srv *server.MetricsServer, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("error during metrics server shutdown", logging.Err(err))
	}
}
