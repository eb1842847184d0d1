package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) CreateHistory(ctx context.Context, entry *domain.SearchHistory) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO search_history (
	id, user_id, identifier_type, identifier_value, results_count, from_cache, credits_consumed, provider, job_id, outcome, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		entry.ID, entry.UserID, string(entry.IdentifierType), entry.IdentifierValue, entry.ResultsCount, entry.FromCache,
		entry.CreditsConsumed, entry.Provider, entry.JobID, string(entry.Outcome), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create search history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) ListHistory(ctx context.Context, userID string, limit int) ([]domain.SearchHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, identifier_type, identifier_value, results_count, from_cache, credits_consumed, provider, job_id, outcome, created_at
FROM search_history
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list search history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SearchHistory, 0)
	for rows.Next() {
		var (
			entry                   domain.SearchHistory
			identifierType, outcome string
		)
		err := rows.Scan(
			&entry.ID, &entry.UserID, &identifierType, &entry.IdentifierValue, &entry.ResultsCount, &entry.FromCache,
			&entry.CreditsConsumed, &entry.Provider, &entry.JobID, &outcome, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan search history: %w", err)
		}
		entry.IdentifierType = domain.IdentifierType(identifierType)
		entry.Outcome = domain.ProviderOutcome(outcome)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search history: %w", err)
	}
	return out, nil
}
