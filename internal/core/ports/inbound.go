package ports

import (
	"context"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

// SearchService is the inbound contract for paid identifier searches.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchOutcome, error)
	History(ctx context.Context, userID string, limit int) ([]domain.SearchHistory, error)
}

// JobTracker exposes async search job state and the status-poll fallback.
type JobTracker interface {
	GetJob(ctx context.Context, userID, jobID string) (*domain.AsyncSearchJob, error)
	PollStatus(ctx context.Context, jobID string) (*domain.AsyncSearchJob, error)
	Sweep(ctx context.Context) (SweepReport, error)
}

type SweepReport struct {
	Polled    int
	Completed int
	Failed    int
	Expired   int
}

// WebhookReceiver authenticates, logs and processes inbound provider callbacks.
type WebhookReceiver interface {
	Receive(ctx context.Context, provider string, body []byte, header http.Header) (domain.CallbackResult, error)
}

// MonitoringService manages standing subscriptions and their alerts.
type MonitoringService interface {
	Create(ctx context.Context, userID string, identifierType domain.IdentifierType, value string, frequency domain.MonitoringFrequency) (*domain.Monitoring, error)
	List(ctx context.Context, userID string) ([]domain.Monitoring, error)
	Get(ctx context.Context, userID, monitoringID string) (*domain.MonitoringDetail, error)
	SetStatus(ctx context.Context, userID, monitoringID string, status domain.MonitoringStatus) (*domain.Monitoring, error)
	Alerts(ctx context.Context, userID, monitoringID string, unreadOnly bool) ([]domain.MonitoringAlert, error)
	MarkAlertRead(ctx context.Context, userID, alertID string) error
}

// CreditService is the read/top-up surface of the credit ledger.
type CreditService interface {
	Balance(ctx context.Context, userID string) (*domain.CreditAccount, error)
	Statement(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
	ExportStatement(ctx context.Context, userID string, w io.Writer) error
	Grant(ctx context.Context, userID string, amount decimal.Decimal, description string) (*domain.CreditTransaction, error)
}

type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
}
