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

	httpadapter "github.com/kirillkom/legal-search-engine/internal/adapters/http"
	"github.com/kirillkom/legal-search-engine/internal/bootstrap"
	"github.com/kirillkom/legal-search-engine/internal/config"
	"github.com/kirillkom/legal-search-engine/internal/observability/logging"
	"github.com/kirillkom/legal-search-engine/internal/observability/metrics"
)

const serviceName = "legal-search-api"

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

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{
		Provider: httpMetrics,
		Callback: httpMetrics,
	})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Search:        app.SearchUC,
		Jobs:          app.JobTracker,
		Webhooks:      app.CallbackUC,
		Monitorings:   app.MonitoringUC,
		Credits:       app.Ledger,
		Notifications: app.NotificationUC,
		Circuits:      app.Circuits,
	}, httpMetrics).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_error", "error", err)
	}
}
