package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type MonitoringRepository struct {
	db *sql.DB
}

func NewMonitoringRepository(db *sql.DB) *MonitoringRepository {
	return &MonitoringRepository{db: db}
}

const monitoringColumns = `id, user_id, identifier_type, identifier_value, case_number, provider, provider_tracking_id,
	frequency, status, alerts_count, last_checked_at, next_check_at, created_at, updated_at`

const alertColumns = `id, monitoring_id, user_id, kind, title, case_number, payload, dedupe_key, unread, created_at`

func (r *MonitoringRepository) CreateMonitoring(ctx context.Context, m *domain.Monitoring) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO monitorings (`+monitoringColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		m.ID, m.UserID, string(m.IdentifierType), m.IdentifierValue, m.CaseNumber, m.Provider, m.ProviderTrackingID,
		string(m.Frequency), string(m.Status), m.AlertsCount, m.LastCheckedAt, m.NextCheckAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "create monitoring", fmt.Errorf("user %s already monitors %s:%s", m.UserID, m.IdentifierType, m.IdentifierValue))
		}
		return fmt.Errorf("create monitoring: %w", err)
	}
	return nil
}

func (r *MonitoringRepository) GetMonitoring(ctx context.Context, id string) (*domain.Monitoring, error) {
	return r.getOne(ctx, "get monitoring", `SELECT `+monitoringColumns+` FROM monitorings WHERE id = $1`, id)
}

func (r *MonitoringRepository) FindMonitoring(ctx context.Context, userID string, identifier domain.Identifier) (*domain.Monitoring, error) {
	return r.getOne(ctx, "find monitoring", `
SELECT `+monitoringColumns+`
FROM monitorings
WHERE user_id = $1 AND identifier_type = $2 AND identifier_value = $3
`, userID, string(identifier.Type), identifier.Value)
}

func (r *MonitoringRepository) FindByTrackingID(ctx context.Context, provider, trackingID string) (*domain.Monitoring, error) {
	return r.getOne(ctx, "find monitoring by tracking id", `
SELECT `+monitoringColumns+`
FROM monitorings
WHERE provider = $1 AND provider_tracking_id = $2
`, provider, trackingID)
}

func (r *MonitoringRepository) ListActiveByCaseNumber(ctx context.Context, caseNumber string) ([]domain.Monitoring, error) {
	return r.list(ctx, `
SELECT `+monitoringColumns+`
FROM monitorings
WHERE case_number = $1 AND status = 'active'
ORDER BY id
`, caseNumber)
}

func (r *MonitoringRepository) ListMonitorings(ctx context.Context, userID string) ([]domain.Monitoring, error) {
	return r.list(ctx, `
SELECT `+monitoringColumns+`
FROM monitorings
WHERE user_id = $1
ORDER BY created_at DESC
`, userID)
}

func (r *MonitoringRepository) UpdateMonitoringStatus(ctx context.Context, id string, status domain.MonitoringStatus, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE monitorings
SET status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("update monitoring status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update monitoring status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update monitoring status", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *MonitoringRepository) RecordAlert(ctx context.Context, alert *domain.MonitoringAlert, checkedAt time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin alert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	payload := []byte(alert.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	result, err := tx.ExecContext(ctx, `
INSERT INTO monitoring_alerts (`+alertColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (monitoring_id, dedupe_key) DO NOTHING
`, alert.ID, alert.MonitoringID, alert.UserID, string(alert.Kind), alert.Title, alert.CaseNumber, payload, alert.DedupeKey, alert.Unread, alert.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert alert rows affected: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE monitorings
SET alerts_count = alerts_count + 1, last_checked_at = $2, updated_at = $2
WHERE id = $1
`, alert.MonitoringID, checkedAt); err != nil {
		return false, fmt.Errorf("bump alerts count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit alert tx: %w", err)
	}
	return true, nil
}

func (r *MonitoringRepository) ListAlerts(ctx context.Context, monitoringID string, unreadOnly bool) ([]domain.MonitoringAlert, error) {
	query := `
SELECT ` + alertColumns + `
FROM monitoring_alerts
WHERE monitoring_id = $1
`
	if unreadOnly {
		query += "AND unread = TRUE\n"
	}
	query += "ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, monitoringID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.MonitoringAlert, 0)
	for rows.Next() {
		var (
			alert   domain.MonitoringAlert
			kind    string
			payload []byte
		)
		if err := rows.Scan(&alert.ID, &alert.MonitoringID, &alert.UserID, &kind, &alert.Title, &alert.CaseNumber, &payload, &alert.DedupeKey, &alert.Unread, &alert.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alert.Kind = domain.EventKind(kind)
		alert.Payload = payload
		out = append(out, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func (r *MonitoringRepository) MarkAlertRead(ctx context.Context, userID, alertID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE monitoring_alerts
SET unread = FALSE
WHERE id = $1 AND user_id = $2
`, alertID, userID)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark alert read rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "mark alert read", fmt.Errorf("id=%s", alertID))
	}
	return nil
}

func (r *MonitoringRepository) getOne(ctx context.Context, operation, query string, args ...any) (*domain.Monitoring, error) {
	m, err := scanMonitoring(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, operation, errors.New("monitoring not found"))
		}
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return &m, nil
}

func (r *MonitoringRepository) list(ctx context.Context, query string, args ...any) ([]domain.Monitoring, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitorings: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Monitoring, 0)
	for rows.Next() {
		m, err := scanMonitoring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitoring: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monitorings: %w", err)
	}
	return out, nil
}

func scanMonitoring(row rowScanner) (domain.Monitoring, error) {
	var (
		m                                 domain.Monitoring
		identifierType, frequency, status string
	)
	err := row.Scan(
		&m.ID, &m.UserID, &identifierType, &m.IdentifierValue, &m.CaseNumber, &m.Provider, &m.ProviderTrackingID,
		&frequency, &status, &m.AlertsCount, &m.LastCheckedAt, &m.NextCheckAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Monitoring{}, err
	}
	m.IdentifierType = domain.IdentifierType(identifierType)
	m.Frequency = domain.MonitoringFrequency(frequency)
	m.Status = domain.MonitoringStatus(status)
	return m, nil
}
