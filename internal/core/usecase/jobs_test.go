package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type asyncHarness struct {
	now           time.Time
	provider      *providerFake
	processes     *memoryProcessRepo
	credits       *memoryCreditRepo
	jobs          *memoryJobRepo
	history       *memoryHistoryRepo
	notifications *memoryNotificationRepo
	monitorings   *memoryMonitoringRepo
	logs          *memoryCallbackLogRepo
	ledger        *CreditLedger
	tracker       *JobTracker
}

func newAsyncHarness(policy JobPolicy) *asyncHarness {
	h := &asyncHarness{
		now:           time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		provider:      &providerFake{name: "judit"},
		processes:     newMemoryProcessRepo(),
		credits:       newMemoryCreditRepo(),
		jobs:          newMemoryJobRepo(),
		history:       &memoryHistoryRepo{},
		notifications: &memoryNotificationRepo{},
		monitorings:   newMemoryMonitoringRepo(),
		logs:          newMemoryCallbackLogRepo(),
	}
	h.ledger = NewCreditLedger(h.credits, nil)
	notifier := NewNotificationDispatcher(h.notifications, nil)
	registry := NewProviderRegistry([]RegistryEntry{{Provider: h.provider, Priority: 1, Active: true}}, nil)
	h.tracker = NewJobTracker(h.jobs, h.processes, h.history, h.ledger, notifier, registry, policy)
	h.tracker.now = fixedClock(h.now)
	return h
}

// seedCommittedJob stores an open job whose credits were already debited.
func (h *asyncHarness) seedCommittedJob(t *testing.T, requestID string, createdAt time.Time) *domain.AsyncSearchJob {
	t.Helper()
	h.credits.seed("user-1", 20)
	res, err := h.ledger.Reserve(context.Background(), "user-1", decimal.NewFromInt(9))
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if _, err := h.ledger.Commit(context.Background(), res, "search"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	job := &domain.AsyncSearchJob{
		ID:                "job-" + requestID,
		UserID:            "user-1",
		IdentifierType:    domain.IdentifierTaxIDIndividual,
		IdentifierValue:   "12345678901",
		Provider:          "judit",
		ProviderRequestID: requestID,
		Status:            domain.JobStatusPending,
		CreditsConsumed:   res.Cost,
		ReservationID:     res.ID,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
	if err := h.jobs.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	return job
}

func TestPollStatusCompletesJob(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-001", h.now.Add(-10*time.Minute))
	h.provider.status = domain.ProviderJobStatus{
		State:     domain.ProviderJobCompleted,
		Processes: []domain.Process{sampleProcess("00000011120248260100"), sampleProcess("00000022220248260100")},
	}

	got, err := h.tracker.PollStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("PollStatus() error = %v", err)
	}
	if got.Status != domain.JobStatusCompleted || got.ResultCount != 2 {
		t.Fatalf("unexpected job: %+v", got)
	}
	if h.processes.count() != 2 {
		t.Fatalf("expected 2 processes, got %d", h.processes.count())
	}
	entries := h.history.all()
	if len(entries) != 1 || !entries[0].CreditsConsumed.IsZero() || entries[0].JobID != job.ID {
		t.Fatalf("expected zero-cost history for job, got %+v", entries)
	}
	if h.notifications.count() != 1 {
		t.Fatalf("expected one notification, got %d", h.notifications.count())
	}
}

func TestPollStatusMarksProcessing(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-002", h.now.Add(-10*time.Minute))
	h.provider.status = domain.ProviderJobStatus{State: domain.ProviderJobProcessing}

	got, err := h.tracker.PollStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("PollStatus() error = %v", err)
	}
	if got.Status != domain.JobStatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
}

func TestPollStatusOnTerminalJobSkipsProvider(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-003", h.now.Add(-10*time.Minute))
	if _, err := h.jobs.CompleteJob(context.Background(), job.ID, 4, h.now); err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}

	got, err := h.tracker.PollStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("PollStatus() error = %v", err)
	}
	if got.ResultCount != 4 || h.provider.statusCalls != 0 {
		t.Fatalf("terminal job must not be re-polled: %+v calls=%d", got, h.provider.statusCalls)
	}
}

func TestPollStatusFailureRefunds(t *testing.T) {
	h := newAsyncHarness(JobPolicy{RefundFailed: true})
	job := h.seedCommittedJob(t, "req-004", h.now.Add(-10*time.Minute))
	h.provider.status = domain.ProviderJobStatus{State: domain.ProviderJobFailed, ErrorMessage: "court offline"}

	got, err := h.tracker.PollStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("PollStatus() error = %v", err)
	}
	if got.Status != domain.JobStatusFailed || got.ErrorMessage != "court offline" {
		t.Fatalf("unexpected job: %+v", got)
	}
	if bal := h.credits.balance("user-1"); !bal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected refund to 20, got %s", bal)
	}
	if h.processes.count() != 0 {
		t.Fatal("failed job must not write processes")
	}
}

func TestPollStatusProviderErrorLeavesJobOpen(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-005", h.now.Add(-10*time.Minute))
	h.provider.statusErr = errors.New("boom")

	if _, err := h.tracker.PollStatus(context.Background(), job.ID); err == nil {
		t.Fatal("expected error")
	}
	stored, _ := h.jobs.GetJob(context.Background(), job.ID)
	if stored.Status != domain.JobStatusPending {
		t.Fatalf("job must stay open, got %s", stored.Status)
	}
}

func TestSweepExpiresAbandonedJobs(t *testing.T) {
	h := newAsyncHarness(JobPolicy{PollAfter: time.Minute, MaxAge: time.Hour, RefundFailed: true})
	old := h.seedCommittedJob(t, "req-old", h.now.Add(-3*time.Hour))
	young := &domain.AsyncSearchJob{
		ID:                "job-young",
		UserID:            "user-1",
		IdentifierType:    domain.IdentifierCaseNumber,
		IdentifierValue:   "00000011120248260100",
		Provider:          "judit",
		ProviderRequestID: "req-young",
		Status:            domain.JobStatusProcessing,
		CreatedAt:         h.now.Add(-5 * time.Minute),
	}
	_ = h.jobs.CreateJob(context.Background(), young)
	h.provider.status = domain.ProviderJobStatus{State: domain.ProviderJobProcessing}

	report, err := h.tracker.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.Polled != 2 || report.Expired != 1 || report.Completed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	stored, _ := h.jobs.GetJob(context.Background(), old.ID)
	if stored.Status != domain.JobStatusFailed || stored.ErrorMessage != domain.JobFailureTimeout {
		t.Fatalf("old job must time out: %+v", stored)
	}
	stillOpen, _ := h.jobs.GetJob(context.Background(), young.ID)
	if stillOpen.Status != domain.JobStatusProcessing {
		t.Fatalf("young job must stay open, got %s", stillOpen.Status)
	}
	if bal := h.credits.balance("user-1"); !bal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expired job must be refunded, balance %s", bal)
	}
	if h.notifications.count() != 1 {
		t.Fatalf("expected a failure notification, got %d", h.notifications.count())
	}
}

func TestSweepWithoutRefundKeepsCharge(t *testing.T) {
	h := newAsyncHarness(JobPolicy{PollAfter: time.Minute, MaxAge: time.Hour})
	h.seedCommittedJob(t, "req-old", h.now.Add(-3*time.Hour))
	h.provider.statusErr = errors.New("unreachable")

	report, err := h.tracker.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.Expired != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if bal := h.credits.balance("user-1"); !bal.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("charge must be kept, balance %s", bal)
	}
}

func TestGetJobHidesOtherUsersJobs(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-006", h.now)

	if _, err := h.tracker.GetJob(context.Background(), "user-2", job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.tracker.GetJob(context.Background(), "user-1", job.ID); err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
}
