package httpadapter

import (
	"context"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/config"
	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
)

type searchFake struct {
	outcome      *domain.SearchOutcome
	err          error
	got          domain.SearchRequest
	history      []domain.SearchHistory
	historyLimit int
}

func (f *searchFake) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchOutcome, error) {
	f.got = req
	return f.outcome, f.err
}

func (f *searchFake) History(_ context.Context, userID string, limit int) ([]domain.SearchHistory, error) {
	f.historyLimit = limit
	var out []domain.SearchHistory
	for _, h := range f.history {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, f.err
}

type jobsFake struct {
	job    *domain.AsyncSearchJob
	err    error
	polled bool
}

func (f *jobsFake) GetJob(_ context.Context, userID, _ string) (*domain.AsyncSearchJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.job.UserID != userID {
		return nil, domain.WrapError(domain.ErrNotFound, "get job", io.EOF)
	}
	return f.job, nil
}

func (f *jobsFake) PollStatus(_ context.Context, _ string) (*domain.AsyncSearchJob, error) {
	f.polled = true
	done := *f.job
	done.Status = domain.JobStatusCompleted
	done.ResultCount = 4
	return &done, nil
}

func (f *jobsFake) Sweep(context.Context) (ports.SweepReport, error) {
	return ports.SweepReport{}, nil
}

type webhookFake struct {
	result   domain.CallbackResult
	err      error
	provider string
	body     []byte
}

func (f *webhookFake) Receive(_ context.Context, provider string, body []byte, _ http.Header) (domain.CallbackResult, error) {
	f.provider = provider
	f.body = body
	return f.result, f.err
}

type monitoringFake struct {
	created   domain.Monitoring
	setStatus domain.MonitoringStatus
	detail    *domain.MonitoringDetail
	err       error
}

func (f *monitoringFake) Create(_ context.Context, userID string, t domain.IdentifierType, value string, freq domain.MonitoringFrequency) (*domain.Monitoring, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = domain.Monitoring{ID: "m-1", UserID: userID, IdentifierType: t, IdentifierValue: value, Frequency: freq, Status: domain.MonitoringActive}
	return &f.created, nil
}

func (f *monitoringFake) List(context.Context, string) ([]domain.Monitoring, error) {
	return nil, f.err
}

func (f *monitoringFake) Get(_ context.Context, userID, id string) (*domain.MonitoringDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.detail == nil || f.detail.ID != id || f.detail.UserID != userID {
		return nil, domain.WrapError(domain.ErrNotFound, "get monitoring", io.EOF)
	}
	return f.detail, nil
}

func (f *monitoringFake) SetStatus(_ context.Context, userID, id string, status domain.MonitoringStatus) (*domain.Monitoring, error) {
	f.setStatus = status
	return &domain.Monitoring{ID: id, UserID: userID, Status: status}, f.err
}

func (f *monitoringFake) Alerts(context.Context, string, string, bool) ([]domain.MonitoringAlert, error) {
	return []domain.MonitoringAlert{{ID: "a-1", MonitoringID: "m-1", Unread: true}}, f.err
}

func (f *monitoringFake) MarkAlertRead(context.Context, string, string) error {
	return f.err
}

type creditsFake struct {
	granted decimal.Decimal
	err     error
}

func (f *creditsFake) Balance(_ context.Context, userID string) (*domain.CreditAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CreditAccount{UserID: userID, Balance: decimal.NewFromInt(41)}, nil
}

func (f *creditsFake) Statement(context.Context, string, int) ([]domain.CreditTransaction, error) {
	return nil, f.err
}

func (f *creditsFake) ExportStatement(_ context.Context, _ string, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("PK\x03\x04"))
	return err
}

func (f *creditsFake) Grant(_ context.Context, userID string, amount decimal.Decimal, description string) (*domain.CreditTransaction, error) {
	f.granted = amount
	return &domain.CreditTransaction{ID: "tx-1", UserID: userID, Amount: amount, Description: description}, f.err
}

type notificationsFake struct{}

func (notificationsFake) List(context.Context, string, bool) ([]domain.Notification, error) {
	return []domain.Notification{{ID: "n-1", Kind: domain.NotificationSearchCompleted}}, nil
}

type testServices struct {
	search      *searchFake
	jobs        *jobsFake
	webhooks    *webhookFake
	monitorings *monitoringFake
	credits     *creditsFake
	circuits    CircuitReporter
}

func newTestServices() testServices {
	return testServices{
		search:      &searchFake{},
		jobs:        &jobsFake{},
		webhooks:    &webhookFake{},
		monitorings: &monitoringFake{},
		credits:     &creditsFake{},
	}
}

func (s testServices) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, Services{
		Search:        s.search,
		Jobs:          s.jobs,
		Webhooks:      s.webhooks,
		Monitorings:   s.monitorings,
		Credits:       s.credits,
		Notifications: notificationsFake{},
		Circuits:      s.circuits,
	}, nil).Handler()
}

type circuitsFake map[string]string

func (f circuitsFake) BreakerStates() map[string]string { return f }
