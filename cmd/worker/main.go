package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/query-reformulator/internal/bootstrap"
	"github.com/kirillkom/query-reformulator/internal/config"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/observability/logging"
	"github.com/kirillkom/query-reformulator/internal/observability/metrics"
)

const (
	serviceName = "worker"
	runTimeout  = 30 * time.Minute
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, logger, workerMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		logger.Error("worker_requires_queue", "hint", "set NATS_URL")
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeRuns(ctx, func(handlerCtx context.Context, req domain.RunRequest) error {
		if !req.EnqueuedAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(req.EnqueuedAt))
		}
		runCtx, cancel := context.WithTimeout(handlerCtx, runTimeout)
		defer cancel()

		workerMetrics.StartRun()
		started := time.Now()
		_, err := app.Service.Run(runCtx, req)
		workerMetrics.FinishRun(req.Config.Name, time.Since(started), err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
