package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/config"
	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
	"github.com/kirillkom/legal-search-engine/internal/core/usecase"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/cache/redis"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/queue/nats"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/resilience"
)

// Observers lets each binary plug its own metrics registry into the core.
type Observers struct {
	Provider ports.ProviderObserver
	Callback ports.CallbackObserver
}

type App struct {
	Config config.Config

	SearchUC       *usecase.SearchUseCase
	JobTracker     *usecase.JobTracker
	CallbackUC     *usecase.CallbackProcessor
	MonitoringUC   *usecase.MonitoringRegistry
	Ledger         *usecase.CreditLedger
	NotificationUC *usecase.NotificationDispatcher
	Circuits       *resilience.Executor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, observers Observers) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	processes := postgres.NewProcessRepository(db)
	credits := postgres.NewCreditRepository(db)
	jobs := postgres.NewJobRepository(db)
	monitorings := postgres.NewMonitoringRepository(db)
	callbackLogs := postgres.NewCallbackLogRepository(db)
	history := postgres.NewHistoryRepository(db)
	notifications := postgres.NewNotificationRepository(db)

	providerExecutor := resilience.NewExecutor(
		resilience.ProviderPolicy().WithOverrides(cfg.ProviderRetryMaxAttempts, cfg.ProviderBreakerOpenTimeout),
	)
	brokerExecutor := resilience.NewExecutor(resilience.BrokerPolicy())

	publisher, err := nats.NewPublisher(cfg.NATSURL, cfg.NATSNotificationsSubject, nats.Options{ResilienceExecutor: brokerExecutor})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init notification publisher: %w", err)
	}

	var (
		deduper     ports.DeliveryDeduper
		redisClient *goredis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			publisher.Close()
			_ = db.Close()
			return nil, fmt.Errorf("init delivery deduper: %w", err)
		}
		deduper = redis.NewDeliveryDeduper(redisClient, "", cfg.RedisDeliveryTTL)
	} else {
		slog.Info("delivery_deduper_disabled", "reason", "REDIS_URL not set")
	}

	entries, endpoints := BuildProviders(cfg.Providers, providerExecutor)
	registry := usecase.NewProviderRegistry(entries, observers.Provider)
	slog.Info("provider_registry_ready", "providers", registry.Names())

	ledger := usecase.NewCreditLedger(credits, xlsx.NewStatementExporter())
	notifier := usecase.NewNotificationDispatcher(notifications, publisher)
	tracker := usecase.NewJobTracker(jobs, processes, history, ledger, notifier, registry, usecase.JobPolicy{
		PollAfter:    cfg.AsyncJobPollAfter,
		MaxAge:       cfg.AsyncJobMaxAge,
		RefundFailed: cfg.AsyncJobRefundFailed,
	})
	searchUC := usecase.NewSearchUseCase(processes, history, jobs, ledger, registry, searchPolicy(cfg))
	callbackUC := usecase.NewCallbackProcessor(endpoints, usecase.NewWebhookValidator(cfg.WebhookReplayWindow), usecase.CallbackDeps{
		Logs:        callbackLogs,
		Jobs:        jobs,
		Monitorings: monitorings,
		Processes:   processes,
		Tracker:     tracker,
		Notifier:    notifier,
		Deduper:     deduper,
		Observer:    observers.Callback,
	})
	monitoringUC := usecase.NewMonitoringRegistry(monitorings, processes, registry)

	return &App{
		Config: cfg,

		SearchUC:       searchUC,
		JobTracker:     tracker,
		CallbackUC:     callbackUC,
		MonitoringUC:   monitoringUC,
		Ledger:         ledger,
		NotificationUC: notifier,
		Circuits:       providerExecutor,

		closeFn: func() {
			publisher.Close()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func searchPolicy(cfg config.Config) usecase.SearchPolicy {
	costs := map[domain.IdentifierType]decimal.Decimal{
		domain.IdentifierTaxIDIndividual: cfg.CreditCostTaxIDIndividual,
		domain.IdentifierTaxIDEntity:     cfg.CreditCostTaxIDEntity,
		domain.IdentifierBarRegistration: cfg.CreditCostBarRegistration,
		domain.IdentifierCaseNumber:      cfg.CreditCostCaseNumber,
	}
	billEmpty := make(map[domain.IdentifierType]bool, len(costs))
	for identifierType := range costs {
		billEmpty[identifierType] = cfg.BillEmptyResults
	}
	return usecase.SearchPolicy{
		Costs:          costs,
		BillEmpty:      billEmpty,
		CacheFreshness: cfg.CacheFreshness,
	}
}
