package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type CallbackLogRepository struct {
	db *sql.DB
}

func NewCallbackLogRepository(db *sql.DB) *CallbackLogRepository {
	return &CallbackLogRepository{db: db}
}

func (r *CallbackLogRepository) CreateCallbackLog(ctx context.Context, log *domain.CallbackLog) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO callback_logs (
	id, provider, correlation_id, event_type, delivery_key, raw_payload, valid, status,
	target_type, target_id, error_message, processing_time_ms, received_at, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		log.ID, log.Provider, log.CorrelationID, log.EventType, log.DeliveryKey, log.RawPayload, log.Valid, string(log.Status),
		log.TargetType, log.TargetID, log.ErrorMessage, log.ProcessingTimeMS, log.ReceivedAt, log.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create callback log: %w", err)
	}
	return nil
}

// UpdateCallbackLog moves the log through its processing states. The
// validity verdict and the raw payload are fixed at creation and never
// rewritten.
func (r *CallbackLogRepository) UpdateCallbackLog(ctx context.Context, log *domain.CallbackLog) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE callback_logs
SET correlation_id = $2, event_type = $3, delivery_key = $4, status = $5, target_type = $6,
	target_id = $7, error_message = $8, processing_time_ms = $9, completed_at = $10
WHERE id = $1
`,
		log.ID, log.CorrelationID, log.EventType, log.DeliveryKey, string(log.Status), log.TargetType,
		log.TargetID, log.ErrorMessage, log.ProcessingTimeMS, log.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update callback log: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update callback log rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update callback log", fmt.Errorf("id=%s", log.ID))
	}
	return nil
}
