package usecase

import (
	"context"
	"errors"
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
	defaultCacheFreshness = 24 * time.Hour
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 500
)

// SearchPolicy is the billing and caching policy of the orchestrator.
type SearchPolicy struct {
	Costs          map[domain.IdentifierType]decimal.Decimal
	BillEmpty      map[domain.IdentifierType]bool
	CacheFreshness time.Duration
}

func (p SearchPolicy) cost(t domain.IdentifierType) decimal.Decimal {
	if c, ok := p.Costs[t]; ok {
		return c
	}
	return decimal.Zero
}

// billEmpty defaults to true: an empty answer is still a completed provider query.
func (p SearchPolicy) billEmpty(t domain.IdentifierType) bool {
	if bill, ok := p.BillEmpty[t]; ok {
		return bill
	}
	return true
}

type providerResolver interface {
	Resolve(ctx context.Context, identifier domain.Identifier) domain.ProviderResult
}

// SearchUseCase resolves an identifier into processes: cache first, then the
// provider registry, billing only confirmed work.
type SearchUseCase struct {
	processes ports.ProcessRepository
	history   ports.SearchHistoryRepository
	jobs      ports.JobRepository
	ledger    *CreditLedger
	registry  providerResolver
	policy    SearchPolicy
	now       func() time.Time
}

func NewSearchUseCase(
	processes ports.ProcessRepository,
	history ports.SearchHistoryRepository,
	jobs ports.JobRepository,
	ledger *CreditLedger,
	registry providerResolver,
	policy SearchPolicy,
) *SearchUseCase {
	if policy.CacheFreshness <= 0 {
		policy.CacheFreshness = defaultCacheFreshness
	}
	return &SearchUseCase{
		processes: processes,
		history:   history,
		jobs:      jobs,
		ledger:    ledger,
		registry:  registry,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchOutcome, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("user id is required"))
	}
	identifier, err := domain.NormalizeIdentifier(req.IdentifierType, req.IdentifierValue)
	if err != nil {
		return nil, err
	}

	if outcome, hit, err := uc.fromCache(ctx, userID, identifier); err != nil || hit {
		return outcome, err
	}

	reservation, err := uc.ledger.Reserve(ctx, userID, uc.policy.cost(identifier.Type))
	if err != nil {
		return nil, err
	}

	result := uc.registry.Resolve(ctx, identifier)
	switch result.Outcome {
	case domain.OutcomeSuccess:
		return uc.completeSync(ctx, userID, identifier, reservation, result)
	case domain.OutcomeEmptyResult:
		return uc.completeEmpty(ctx, userID, identifier, reservation, result)
	case domain.OutcomeAsync:
		return uc.startAsync(ctx, userID, identifier, reservation, result)
	default:
		return uc.failAll(ctx, userID, identifier, reservation, result)
	}
}

func (uc *SearchUseCase) fromCache(ctx context.Context, userID string, identifier domain.Identifier) (*domain.SearchOutcome, bool, error) {
	cached, err := uc.processes.FindFresh(ctx, identifier, uc.now().Add(-uc.policy.CacheFreshness))
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if len(cached) == 0 {
		return nil, false, nil
	}

	uc.recordHistory(ctx, &domain.SearchHistory{
		UserID:          userID,
		IdentifierType:  identifier.Type,
		IdentifierValue: identifier.Value,
		ResultsCount:    len(cached),
		FromCache:       true,
		CreditsConsumed: decimal.Zero,
	})
	slog.InfoContext(ctx, "search_completed",
		"user_id", userID,
		"identifier_type", string(identifier.Type),
		"from_cache", true,
		"results", len(cached),
	)
	return &domain.SearchOutcome{
		Identifier:      identifier,
		ResultsCount:    len(cached),
		FromCache:       true,
		CreditsConsumed: decimal.Zero,
		Records:         cached,
	}, true, nil
}

func (uc *SearchUseCase) completeSync(
	ctx context.Context,
	userID string,
	identifier domain.Identifier,
	reservation *domain.Reservation,
	result domain.ProviderResult,
) (*domain.SearchOutcome, error) {
	records := PrepareProcesses(result.Processes, identifier, result.Provider, uc.now())
	if err := uc.processes.UpsertProcesses(ctx, records); err != nil {
		uc.ledger.Release(ctx, reservation, "persist processes failed")
		return nil, fmt.Errorf("persist processes: %w", err)
	}

	if _, err := uc.ledger.Commit(ctx, reservation, searchDescription(identifier, result.Provider)); err != nil {
		// The processes stay upserted, so a later search within the cache
		// window serves them without a debit.
		slog.WarnContext(ctx, "search_results_cached_unbilled",
			"user_id", userID,
			"identifier_type", string(identifier.Type),
			"provider", result.Provider,
			"results", len(records),
			"error", err,
		)
		return nil, err
	}

	count := result.ResultCount
	if count < len(records) {
		count = len(records)
	}
	uc.recordHistory(ctx, &domain.SearchHistory{
		UserID:          userID,
		IdentifierType:  identifier.Type,
		IdentifierValue: identifier.Value,
		ResultsCount:    count,
		CreditsConsumed: reservation.Cost,
		Provider:        result.Provider,
		Outcome:         result.Outcome,
	})
	slog.InfoContext(ctx, "search_completed",
		"user_id", userID,
		"identifier_type", string(identifier.Type),
		"provider", result.Provider,
		"results", count,
		"credits", reservation.Cost.String(),
	)
	return &domain.SearchOutcome{
		Identifier:      identifier,
		ResultsCount:    count,
		CreditsConsumed: reservation.Cost,
		Provider:        result.Provider,
		Records:         records,
	}, nil
}

func (uc *SearchUseCase) completeEmpty(
	ctx context.Context,
	userID string,
	identifier domain.Identifier,
	reservation *domain.Reservation,
	result domain.ProviderResult,
) (*domain.SearchOutcome, error) {
	consumed := decimal.Zero
	if uc.policy.billEmpty(identifier.Type) {
		if _, err := uc.ledger.Commit(ctx, reservation, searchDescription(identifier, result.Provider)+" (no results)"); err != nil {
			return nil, err
		}
		consumed = reservation.Cost
	} else {
		uc.ledger.Release(ctx, reservation, "empty result is free for "+string(identifier.Type))
	}

	uc.recordHistory(ctx, &domain.SearchHistory{
		UserID:          userID,
		IdentifierType:  identifier.Type,
		IdentifierValue: identifier.Value,
		ResultsCount:    0,
		CreditsConsumed: consumed,
		Provider:        result.Provider,
		Outcome:         result.Outcome,
	})
	return &domain.SearchOutcome{
		Identifier:      identifier,
		CreditsConsumed: consumed,
		Provider:        result.Provider,
		Records:         []domain.Process{},
	}, nil
}

func (uc *SearchUseCase) startAsync(
	ctx context.Context,
	userID string,
	identifier domain.Identifier,
	reservation *domain.Reservation,
	result domain.ProviderResult,
) (*domain.SearchOutcome, error) {
	if _, err := uc.ledger.Commit(ctx, reservation, searchDescription(identifier, result.Provider)+" (async)"); err != nil {
		return nil, err
	}

	now := uc.now()
	job := &domain.AsyncSearchJob{
		ID:                uuid.NewString(),
		UserID:            userID,
		IdentifierType:    identifier.Type,
		IdentifierValue:   identifier.Value,
		Provider:          result.Provider,
		ProviderRequestID: result.Handle.RequestID,
		Status:            domain.JobStatusPending,
		CreditsConsumed:   reservation.Cost,
		ReservationID:     reservation.ID,
		EstimatedMinutes:  result.Handle.EstimatedMinutes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := uc.jobs.CreateJob(ctx, job); err != nil {
		if _, refundErr := uc.ledger.Refund(ctx, reservation, "async job could not be recorded"); refundErr != nil {
			return nil, fmt.Errorf("create async job: %w; refund: %v", err, refundErr)
		}
		return nil, fmt.Errorf("create async job: %w", err)
	}

	uc.recordHistory(ctx, &domain.SearchHistory{
		UserID:          userID,
		IdentifierType:  identifier.Type,
		IdentifierValue: identifier.Value,
		CreditsConsumed: reservation.Cost,
		Provider:        result.Provider,
		JobID:           job.ID,
		Outcome:         result.Outcome,
	})
	slog.InfoContext(ctx, "search_async_started",
		"user_id", userID,
		"job_id", job.ID,
		"provider", result.Provider,
		"provider_request_id", job.ProviderRequestID,
	)
	return &domain.SearchOutcome{
		Identifier:      identifier,
		CreditsConsumed: reservation.Cost,
		Provider:        result.Provider,
		Job:             job,
	}, nil
}

func (uc *SearchUseCase) failAll(
	ctx context.Context,
	userID string,
	identifier domain.Identifier,
	reservation *domain.Reservation,
	result domain.ProviderResult,
) (*domain.SearchOutcome, error) {
	uc.ledger.Release(ctx, reservation, "all providers failed")
	uc.recordHistory(ctx, &domain.SearchHistory{
		UserID:          userID,
		IdentifierType:  identifier.Type,
		IdentifierValue: identifier.Value,
		CreditsConsumed: decimal.Zero,
		Outcome:         domain.OutcomeAllProvidersFailed,
	})
	slog.ErrorContext(ctx, "search_failed",
		"user_id", userID,
		"identifier_type", string(identifier.Type),
		"detail", result.Detail,
	)
	return nil, domain.WrapError(domain.ErrAllProvidersFailed, "search", errors.New(result.Detail))
}

// recordHistory is best effort: by the time it runs the search has already
// been billed and persisted, so a failure is logged rather than returned.
// History lists the user's searches, newest first.
func (uc *SearchUseCase) History(ctx context.Context, userID string, limit int) ([]domain.SearchHistory, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list search history", errors.New("user id is required"))
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	entries, err := uc.history.ListHistory(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list search history: %w", err)
	}
	return entries, nil
}

func (uc *SearchUseCase) recordHistory(ctx context.Context, entry *domain.SearchHistory) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = uc.now()
	if err := uc.history.CreateHistory(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "search_history_write_failed",
			"user_id", entry.UserID,
			"identifier_type", string(entry.IdentifierType),
			"error", err,
		)
	}
}

// PrepareProcesses stamps provider records for persistence: normalized key,
// originating provider, refresh time and the searched identifier among the
// associated ids. Records without a case number are dropped.
func PrepareProcesses(records []domain.Process, identifier domain.Identifier, provider string, now time.Time) []domain.Process {
	out := make([]domain.Process, 0, len(records))
	seen := make(map[string]int, len(records))
	for _, record := range records {
		record.CaseNumber = domain.NormalizeCaseNumber(record.CaseNumber)
		if record.CaseNumber == "" {
			continue
		}
		if record.Provider == "" {
			record.Provider = provider
		}
		record.UpdatedAt = now
		record.AssociatedIDs = domain.DedupeStrings(record.AssociatedIDs)
		if identifier.Type != domain.IdentifierCaseNumber {
			record.EnsureAssociatedID(identifier.Value)
		}
		if record.Authors == nil || record.Defendants == nil {
			authors, defendants := domain.PartyNames(record.Parties)
			if record.Authors == nil {
				record.Authors = authors
			}
			if record.Defendants == nil {
				record.Defendants = defendants
			}
		}

		if idx, ok := seen[record.CaseNumber]; ok {
			out[idx].Merge(record)
			continue
		}
		seen[record.CaseNumber] = len(out)
		out = append(out, record)
	}
	return out
}

func searchDescription(identifier domain.Identifier, provider string) string {
	if provider == "" {
		return "search " + string(identifier.Type)
	}
	return "search " + string(identifier.Type) + " via " + provider
}
