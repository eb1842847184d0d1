package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
)

const (
	defaultJobPollAfter  = 2 * time.Minute
	defaultJobMaxAge     = 2 * time.Hour
	defaultJobSweepLimit = 100
)

type JobPolicy struct {
	// PollAfter is the minimum job age before the sweep polls the provider.
	PollAfter time.Duration
	// MaxAge fails jobs that are still open after this long.
	MaxAge       time.Duration
	SweepLimit   int
	RefundFailed bool
}

type providerLookup interface {
	Provider(name string) (ports.SearchProvider, bool)
}

// JobTracker owns the terminal transitions of async search jobs. Both the
// webhook path and status polls finish jobs through it, and the repository's
// conditional updates make the first writer win.
type JobTracker struct {
	jobs      ports.JobRepository
	processes ports.ProcessRepository
	history   ports.SearchHistoryRepository
	ledger    *CreditLedger
	notifier  *NotificationDispatcher
	providers providerLookup
	policy    JobPolicy
	now       func() time.Time
}

func NewJobTracker(
	jobs ports.JobRepository,
	processes ports.ProcessRepository,
	history ports.SearchHistoryRepository,
	ledger *CreditLedger,
	notifier *NotificationDispatcher,
	providers providerLookup,
	policy JobPolicy,
) *JobTracker {
	if policy.PollAfter <= 0 {
		policy.PollAfter = defaultJobPollAfter
	}
	if policy.MaxAge <= 0 {
		policy.MaxAge = defaultJobMaxAge
	}
	if policy.SweepLimit <= 0 {
		policy.SweepLimit = defaultJobSweepLimit
	}
	return &JobTracker{
		jobs:      jobs,
		processes: processes,
		history:   history,
		ledger:    ledger,
		notifier:  notifier,
		providers: providers,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetJob returns the job only to the user who started it.
func (t *JobTracker) GetJob(ctx context.Context, userID, jobID string) (*domain.AsyncSearchJob, error) {
	job, err := t.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.WrapError(domain.ErrNotFound, "get job", fmt.Errorf("job %s", jobID))
	}
	return job, nil
}

// PollStatus asks the provider about an open job and applies the answer.
func (t *JobTracker) PollStatus(ctx context.Context, jobID string) (*domain.AsyncSearchJob, error) {
	job, err := t.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return t.poll(ctx, job)
}

func (t *JobTracker) poll(ctx context.Context, job *domain.AsyncSearchJob) (*domain.AsyncSearchJob, error) {
	if job.Status.IsTerminal() {
		return job, nil
	}
	provider, ok := t.providers.Provider(job.Provider)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "poll job", fmt.Errorf("unknown provider %q", job.Provider))
	}

	status, err := provider.JobStatus(ctx, job.ProviderRequestID)
	if err != nil {
		return nil, fmt.Errorf("poll job %s: %w", job.ID, err)
	}

	switch status.State {
	case domain.ProviderJobCompleted:
		if _, err := t.completeJob(ctx, job, status.Processes, len(status.Processes)); err != nil {
			return nil, err
		}
	case domain.ProviderJobFailed:
		reason := strings.TrimSpace(status.ErrorMessage)
		if reason == "" {
			reason = "provider reported failure"
		}
		if _, err := t.failJob(ctx, job, reason); err != nil {
			return nil, err
		}
	case domain.ProviderJobProcessing:
		if job.Status == domain.JobStatusPending {
			if err := t.markProcessing(ctx, job); err != nil {
				return nil, err
			}
		}
	}
	return t.jobs.GetJob(ctx, job.ID)
}

// Sweep polls stale open jobs and fails the ones past their maximum age.
func (t *JobTracker) Sweep(ctx context.Context) (ports.SweepReport, error) {
	var report ports.SweepReport
	now := t.now()

	open, err := t.jobs.ListOpenJobs(ctx, now.Add(-t.policy.PollAfter), t.policy.SweepLimit)
	if err != nil {
		return report, fmt.Errorf("list open jobs: %w", err)
	}

	for i := range open {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		job := &open[i]
		report.Polled++

		polled, err := t.poll(ctx, job)
		if err != nil {
			slog.WarnContext(ctx, "job_poll_failed",
				"job_id", job.ID,
				"provider", job.Provider,
				"error", err,
			)
		} else {
			job = polled
		}

		switch job.Status {
		case domain.JobStatusCompleted:
			report.Completed++
			continue
		case domain.JobStatusFailed:
			report.Failed++
			continue
		}

		if now.Sub(job.CreatedAt) < t.policy.MaxAge {
			continue
		}
		applied, err := t.failJob(ctx, job, domain.JobFailureTimeout)
		if err != nil {
			slog.ErrorContext(ctx, "job_expire_failed", "job_id", job.ID, "error", err)
			continue
		}
		if applied {
			report.Expired++
		}
	}
	return report, nil
}

func (t *JobTracker) markProcessing(ctx context.Context, job *domain.AsyncSearchJob) error {
	now := t.now()
	applied, err := t.jobs.MarkJobProcessing(ctx, job.ID, now)
	if err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	if applied {
		job.Status = domain.JobStatusProcessing
		job.UpdatedAt = now
	}
	return nil
}

// completeJob persists the delivered processes and closes the job. It reports
// false without side effects beyond the idempotent upsert when the job was
// already terminal.
func (t *JobTracker) completeJob(
	ctx context.Context,
	job *domain.AsyncSearchJob,
	processes []domain.Process,
	resultCount int,
) (bool, error) {
	if job.Status.IsTerminal() {
		return false, nil
	}
	now := t.now()

	records := PrepareProcesses(processes, job.Identifier(), job.Provider, now)
	if len(records) > 0 {
		if err := t.processes.UpsertProcesses(ctx, records); err != nil {
			return false, fmt.Errorf("persist job processes: %w", err)
		}
	}
	if resultCount < len(records) {
		resultCount = len(records)
	}

	applied, err := t.jobs.CompleteJob(ctx, job.ID, resultCount, now)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	if !applied {
		slog.InfoContext(ctx, "job_already_terminal", "job_id", job.ID)
		return false, nil
	}
	job.Status = domain.JobStatusCompleted
	job.ResultCount = resultCount
	job.UpdatedAt = now
	job.CompletedAt = &now

	// Billing happened when the job was created.
	if err := t.history.CreateHistory(ctx, &domain.SearchHistory{
		ID:              uuid.NewString(),
		UserID:          job.UserID,
		IdentifierType:  job.IdentifierType,
		IdentifierValue: job.IdentifierValue,
		ResultsCount:    resultCount,
		CreditsConsumed: decimal.Zero,
		Provider:        job.Provider,
		JobID:           job.ID,
		Outcome:         domain.OutcomeSuccess,
		CreatedAt:       now,
	}); err != nil {
		slog.ErrorContext(ctx, "search_history_write_failed", "job_id", job.ID, "error", err)
	}

	t.notify(ctx, job, domain.NotificationSearchCompleted,
		"Search completed",
		fmt.Sprintf("Your %s search finished with %d result(s).", job.IdentifierType, resultCount),
	)
	slog.InfoContext(ctx, "job_completed",
		"job_id", job.ID,
		"provider", job.Provider,
		"results", resultCount,
	)
	return true, nil
}

// failJob closes the job as failed, refunding the committed credits when the
// policy says so. No processes are written on this path.
func (t *JobTracker) failJob(ctx context.Context, job *domain.AsyncSearchJob, reason string) (bool, error) {
	if job.Status.IsTerminal() {
		return false, nil
	}
	now := t.now()

	applied, err := t.jobs.FailJob(ctx, job.ID, reason, now)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	if !applied {
		slog.InfoContext(ctx, "job_already_terminal", "job_id", job.ID)
		return false, nil
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = reason
	job.UpdatedAt = now
	job.CompletedAt = &now

	if t.policy.RefundFailed && job.ReservationID != "" && job.CreditsConsumed.IsPositive() {
		res := job.Reservation(decimal.Zero)
		if _, err := t.ledger.Refund(ctx, &res, "refund: async search failed"); err != nil {
			return true, fmt.Errorf("refund failed job %s: %w", job.ID, err)
		}
	}

	t.notify(ctx, job, domain.NotificationSearchFailed,
		"Search failed",
		fmt.Sprintf("Your %s search could not be completed.", job.IdentifierType),
	)
	slog.WarnContext(ctx, "job_failed",
		"job_id", job.ID,
		"provider", job.Provider,
		"reason", reason,
	)
	return true, nil
}

func (t *JobTracker) notify(ctx context.Context, job *domain.AsyncSearchJob, kind domain.NotificationKind, title, message string) {
	if t.notifier == nil {
		return
	}
	if _, err := t.notifier.Notify(ctx, job.UserID, kind, title, message, job.ID); err != nil {
		slog.ErrorContext(ctx, "job_notification_failed", "job_id", job.ID, "error", err)
	}
}
