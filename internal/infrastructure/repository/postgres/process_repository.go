package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type ProcessRepository struct {
	db *sql.DB
}

func NewProcessRepository(db *sql.DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

const processColumns = `case_number, court_id, court_name, distribution_date, status, phase, case_value, judge_name,
	authors, defendants, parties, associated_ids, provider, last_update, updated_at`

// upsertProcessQuery folds an incoming record into the stored one the same
// way domain.Process.Merge does: non-empty fields win, associated ids are
// unioned and party lists only move forward when the new record has any.
const upsertProcessQuery = `
INSERT INTO processes (` + processColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (case_number) DO UPDATE SET
	court_id = COALESCE(NULLIF(EXCLUDED.court_id, ''), processes.court_id),
	court_name = COALESCE(NULLIF(EXCLUDED.court_name, ''), processes.court_name),
	distribution_date = COALESCE(EXCLUDED.distribution_date, processes.distribution_date),
	status = COALESCE(NULLIF(EXCLUDED.status, ''), processes.status),
	phase = COALESCE(NULLIF(EXCLUDED.phase, ''), processes.phase),
	case_value = COALESCE(EXCLUDED.case_value, processes.case_value),
	judge_name = COALESCE(NULLIF(EXCLUDED.judge_name, ''), processes.judge_name),
	authors = CASE WHEN jsonb_array_length(EXCLUDED.authors) > 0 THEN EXCLUDED.authors ELSE processes.authors END,
	defendants = CASE WHEN jsonb_array_length(EXCLUDED.defendants) > 0 THEN EXCLUDED.defendants ELSE processes.defendants END,
	parties = CASE WHEN jsonb_array_length(EXCLUDED.parties) > 0 THEN EXCLUDED.parties ELSE processes.parties END,
	associated_ids = (
		SELECT COALESCE(jsonb_agg(DISTINCT id), '[]'::jsonb)
		FROM jsonb_array_elements(processes.associated_ids || EXCLUDED.associated_ids) AS id
	),
	provider = COALESCE(NULLIF(EXCLUDED.provider, ''), processes.provider),
	last_update = COALESCE(EXCLUDED.last_update, processes.last_update),
	updated_at = GREATEST(processes.updated_at, EXCLUDED.updated_at)
`

func (r *ProcessRepository) UpsertProcesses(ctx context.Context, processes []domain.Process) error {
	if len(processes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert processes tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, p := range processes {
		args, err := processArgs(p)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertProcessQuery, args...); err != nil {
			return fmt.Errorf("upsert process %s: %w", p.CaseNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert processes tx: %w", err)
	}
	return nil
}

func (r *ProcessRepository) GetByCaseNumber(ctx context.Context, caseNumber string) (*domain.Process, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+processColumns+` FROM processes WHERE case_number = $1`, caseNumber)
	p, err := scanProcess(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get process", fmt.Errorf("case number %s", caseNumber))
		}
		return nil, fmt.Errorf("get process: %w", err)
	}
	return &p, nil
}

// FindFresh returns processes for the identifier updated at or after
// updatedSince. Case numbers hit the primary key, every other identifier the
// GIN index on associated_ids.
func (r *ProcessRepository) FindFresh(ctx context.Context, identifier domain.Identifier, updatedSince time.Time) ([]domain.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes WHERE associated_ids @> jsonb_build_array($1::text) AND updated_at >= $2 ORDER BY updated_at DESC`
	if identifier.Type == domain.IdentifierCaseNumber {
		query = `SELECT ` + processColumns + ` FROM processes WHERE case_number = $1 AND updated_at >= $2`
	}

	rows, err := r.db.QueryContext(ctx, query, identifier.Value, updatedSince)
	if err != nil {
		return nil, fmt.Errorf("find fresh processes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Process, 0)
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processes: %w", err)
	}
	return out, nil
}

func processArgs(p domain.Process) ([]any, error) {
	authors, err := json.Marshal(nonNil(p.Authors))
	if err != nil {
		return nil, fmt.Errorf("marshal authors: %w", err)
	}
	defendants, err := json.Marshal(nonNil(p.Defendants))
	if err != nil {
		return nil, fmt.Errorf("marshal defendants: %w", err)
	}
	parties := []byte("[]")
	if len(p.Parties) > 0 {
		if parties, err = json.Marshal(p.Parties); err != nil {
			return nil, fmt.Errorf("marshal parties: %w", err)
		}
	}
	associated, err := json.Marshal(nonNil(p.AssociatedIDs))
	if err != nil {
		return nil, fmt.Errorf("marshal associated ids: %w", err)
	}

	var caseValue decimal.NullDecimal
	if p.CaseValue != nil {
		caseValue = decimal.NewNullDecimal(*p.CaseValue)
	}
	return []any{
		p.CaseNumber, p.CourtID, p.CourtName, p.DistributionDate, p.Status, p.Phase, caseValue, p.JudgeName,
		authors, defendants, parties, associated, p.Provider, p.LastUpdate, p.UpdatedAt,
	}, nil
}

func scanProcess(row rowScanner) (domain.Process, error) {
	var (
		p                                      domain.Process
		caseValue                              decimal.NullDecimal
		authors, defendants, parties, assocRaw []byte
	)
	err := row.Scan(
		&p.CaseNumber, &p.CourtID, &p.CourtName, &p.DistributionDate, &p.Status, &p.Phase, &caseValue, &p.JudgeName,
		&authors, &defendants, &parties, &assocRaw, &p.Provider, &p.LastUpdate, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Process{}, err
	}
	if caseValue.Valid {
		value := caseValue.Decimal
		p.CaseValue = &value
	}
	if err := unmarshalJSONB(authors, &p.Authors); err != nil {
		return domain.Process{}, fmt.Errorf("unmarshal authors: %w", err)
	}
	if err := unmarshalJSONB(defendants, &p.Defendants); err != nil {
		return domain.Process{}, fmt.Errorf("unmarshal defendants: %w", err)
	}
	if err := unmarshalJSONB(parties, &p.Parties); err != nil {
		return domain.Process{}, fmt.Errorf("unmarshal parties: %w", err)
	}
	if err := unmarshalJSONB(assocRaw, &p.AssociatedIDs); err != nil {
		return domain.Process{}, fmt.Errorf("unmarshal associated ids: %w", err)
	}
	p.Authors = nonNil(p.Authors)
	p.Defendants = nonNil(p.Defendants)
	p.AssociatedIDs = nonNil(p.AssociatedIDs)
	return p, nil
}

func unmarshalJSONB(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
