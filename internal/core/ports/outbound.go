package ports

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

// ProcessRepository persists canonical processes keyed by case number.
type ProcessRepository interface {
	UpsertProcesses(ctx context.Context, processes []domain.Process) error
	GetByCaseNumber(ctx context.Context, caseNumber string) (*domain.Process, error)
	FindFresh(ctx context.Context, identifier domain.Identifier, updatedSince time.Time) ([]domain.Process, error)
}

// CreditRepository applies balance movements together with their ledger row.
// A negative movement is conditional on the balance covering it and fails with
// domain.ErrInsufficientCredits otherwise. applied is false when the movement's
// reference was already recorded.
type CreditRepository interface {
	GetAccount(ctx context.Context, userID string) (*domain.CreditAccount, error)
	ApplyMovement(ctx context.Context, movement domain.CreditMovement) (tx domain.CreditTransaction, applied bool, err error)
	FindTransaction(ctx context.Context, reference string) (*domain.CreditTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
}

// JobRepository persists async search jobs. The transition methods only touch
// jobs that are still pending or processing and report whether they did.
type JobRepository interface {
	CreateJob(ctx context.Context, job *domain.AsyncSearchJob) error
	GetJob(ctx context.Context, id string) (*domain.AsyncSearchJob, error)
	GetJobByProviderRequest(ctx context.Context, provider, requestID string) (*domain.AsyncSearchJob, error)
	MarkJobProcessing(ctx context.Context, id string, at time.Time) (bool, error)
	CompleteJob(ctx context.Context, id string, resultCount int, at time.Time) (bool, error)
	FailJob(ctx context.Context, id string, errMessage string, at time.Time) (bool, error)
	ListOpenJobs(ctx context.Context, createdBefore time.Time, limit int) ([]domain.AsyncSearchJob, error)
}

// MonitoringRepository persists subscriptions and their alerts.
type MonitoringRepository interface {
	CreateMonitoring(ctx context.Context, m *domain.Monitoring) error
	GetMonitoring(ctx context.Context, id string) (*domain.Monitoring, error)
	FindMonitoring(ctx context.Context, userID string, identifier domain.Identifier) (*domain.Monitoring, error)
	FindByTrackingID(ctx context.Context, provider, trackingID string) (*domain.Monitoring, error)
	ListActiveByCaseNumber(ctx context.Context, caseNumber string) ([]domain.Monitoring, error)
	ListMonitorings(ctx context.Context, userID string) ([]domain.Monitoring, error)
	UpdateMonitoringStatus(ctx context.Context, id string, status domain.MonitoringStatus, at time.Time) error
	// RecordAlert inserts the alert unless one with the same dedupe key exists
	// for the monitoring; on insert it bumps alerts_count and last_checked_at in
	// the same transaction.
	RecordAlert(ctx context.Context, alert *domain.MonitoringAlert, checkedAt time.Time) (bool, error)
	ListAlerts(ctx context.Context, monitoringID string, unreadOnly bool) ([]domain.MonitoringAlert, error)
	MarkAlertRead(ctx context.Context, userID, alertID string) error
}

// CallbackLogRepository stores the audit trail of webhook deliveries.
type CallbackLogRepository interface {
	CreateCallbackLog(ctx context.Context, log *domain.CallbackLog) error
	UpdateCallbackLog(ctx context.Context, log *domain.CallbackLog) error
}

type SearchHistoryRepository interface {
	CreateHistory(ctx context.Context, entry *domain.SearchHistory) error
	ListHistory(ctx context.Context, userID string, limit int) ([]domain.SearchHistory, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
}

// NotificationPublisher fans notifications out to delivery channels.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n domain.Notification) error
}

// DeliveryDeduper remembers webhook deliveries that were fully processed.
type DeliveryDeduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// SearchProvider is one external legal-data source. Search never returns raw
// provider errors; everything is mapped to a domain.ProviderOutcome.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, identifier domain.Identifier) domain.ProviderResult
	JobStatus(ctx context.Context, requestID string) (domain.ProviderJobStatus, error)
}

// MonitoringProvider is implemented by providers that can push events for a
// watched identifier.
type MonitoringProvider interface {
	RegisterMonitoring(ctx context.Context, identifier domain.Identifier, frequency domain.MonitoringFrequency) (trackingID string, err error)
}

// CallbackDecoder turns one provider's webhook deliveries into canonical events.
type CallbackDecoder interface {
	Provider() string
	Credentials(body []byte, header http.Header) domain.WebhookCredentials
	Decode(body []byte) (domain.CallbackEvent, error)
}

// ProviderObserver receives one observation per provider call.
type ProviderObserver interface {
	ObserveProviderCall(provider string, outcome domain.ProviderOutcome, duration time.Duration)
}

// StatementExporter renders a credit statement document.
type StatementExporter interface {
	WriteStatement(w io.Writer, account domain.CreditAccount, transactions []domain.CreditTransaction) error
}

// CallbackObserver receives one observation per webhook delivery.
type CallbackObserver interface {
	ObserveCallback(provider string, status domain.CallbackStatus, duration time.Duration)
}
