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

	"github.com/joho/godotenv"

	"github.com/kirillkom/legal-search-engine/internal/bootstrap"
	"github.com/kirillkom/legal-search-engine/internal/config"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
	"github.com/kirillkom/legal-search-engine/internal/observability/logging"
	"github.com/kirillkom/legal-search-engine/internal/observability/metrics"
)

const serviceName = "legal-search-worker"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	if err := config.LoadProviders(&cfg, cfg.ProvidersFile); err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{Provider: workerMetrics})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()

	slog.Info("worker_started",
		"sweep_interval", cfg.WorkerSweepInterval.String(),
		"job_max_age", cfg.AsyncJobMaxAge.String(),
	)
	runSweeps(ctx, app.JobTracker, workerMetrics, cfg.WorkerSweepInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	slog.Info("worker_stopped")
}

// runSweeps runs one sweep immediately and then on every tick until ctx is
// cancelled. A sweep never overlaps the next one.
func runSweeps(ctx context.Context, tracker ports.JobTracker, m *metrics.WorkerMetrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweepOnce(ctx, tracker, m, interval)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweepOnce(ctx context.Context, tracker ports.JobTracker, m *metrics.WorkerMetrics, budget time.Duration) {
	sweepCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	report, err := tracker.Sweep(sweepCtx)
	m.ObserveSweep(report, time.Since(start), err)
	if err != nil {
		slog.Error("job_sweep_failed", "error", err)
		return
	}
	if report.Polled > 0 || report.Expired > 0 {
		slog.Info("job_sweep_completed",
			"polled", report.Polled,
			"completed", report.Completed,
			"failed", report.Failed,
			"expired", report.Expired,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	}
}
