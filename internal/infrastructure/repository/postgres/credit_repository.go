package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type CreditRepository struct {
	db *sql.DB
}

func NewCreditRepository(db *sql.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

const transactionColumns = `id, user_id, amount, operation, monetary_cost, description, reference, balance_after, created_at`

func (r *CreditRepository) GetAccount(ctx context.Context, userID string) (*domain.CreditAccount, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT user_id, balance, cost_per_credit, plan, updated_at
FROM credit_accounts
WHERE user_id = $1
`, userID)

	var account domain.CreditAccount
	if err := row.Scan(&account.UserID, &account.Balance, &account.CostPerCredit, &account.Plan, &account.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get credit account", fmt.Errorf("user %s", userID))
		}
		return nil, fmt.Errorf("get credit account: %w", err)
	}
	return &account, nil
}

// ApplyMovement changes the balance and appends the ledger row in one
// transaction. Debits only apply while the balance covers them; the check and
// the write are the same UPDATE, so concurrent debits can never overdraw.
func (r *CreditRepository) ApplyMovement(ctx context.Context, m domain.CreditMovement) (domain.CreditTransaction, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CreditTransaction{}, false, fmt.Errorf("begin credit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	existing, err := scanTransaction(tx.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM credit_transactions WHERE reference = $1`, m.Reference))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.CreditTransaction{}, false, fmt.Errorf("lookup credit reference: %w", err)
	}

	var balanceAfter decimal.Decimal
	if m.Amount.IsNegative() {
		err = tx.QueryRowContext(ctx, `
UPDATE credit_accounts
SET balance = balance + $2, updated_at = $3
WHERE user_id = $1 AND balance + $2 >= 0
RETURNING balance
`, m.UserID, m.Amount, m.CreatedAt).Scan(&balanceAfter)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CreditTransaction{}, false, domain.WrapError(domain.ErrInsufficientCredits, "debit credits", fmt.Errorf("user %s cannot cover %s", m.UserID, m.Amount.Neg()))
		}
	} else {
		err = tx.QueryRowContext(ctx, `
INSERT INTO credit_accounts (user_id, balance, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (user_id) DO UPDATE SET balance = credit_accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
RETURNING balance
`, m.UserID, m.Amount, m.CreatedAt).Scan(&balanceAfter)
	}
	if err != nil {
		return domain.CreditTransaction{}, false, fmt.Errorf("apply credit movement: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
INSERT INTO credit_transactions (`+transactionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (reference) DO NOTHING
`, m.TransactionID, m.UserID, m.Amount, string(m.Operation), m.MonetaryCost, m.Description, m.Reference, balanceAfter, m.CreatedAt)
	if err != nil {
		return domain.CreditTransaction{}, false, fmt.Errorf("insert credit transaction: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return domain.CreditTransaction{}, false, fmt.Errorf("credit transaction rows affected: %w", err)
	}
	if inserted == 0 {
		// A concurrent movement with the same reference won; undo ours.
		_ = tx.Rollback()
		winner, err := r.FindTransaction(ctx, m.Reference)
		if err != nil {
			return domain.CreditTransaction{}, false, err
		}
		return *winner, false, nil
	}

	if err := tx.Commit(); err != nil {
		return domain.CreditTransaction{}, false, fmt.Errorf("commit credit tx: %w", err)
	}
	return domain.CreditTransaction{
		ID:           m.TransactionID,
		UserID:       m.UserID,
		Amount:       m.Amount,
		Operation:    m.Operation,
		MonetaryCost: m.MonetaryCost,
		Description:  m.Description,
		Reference:    m.Reference,
		BalanceAfter: balanceAfter,
		CreatedAt:    m.CreatedAt,
	}, true, nil
}

func (r *CreditRepository) FindTransaction(ctx context.Context, reference string) (*domain.CreditTransaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM credit_transactions WHERE reference = $1`, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "find credit transaction", fmt.Errorf("reference %s", reference))
		}
		return nil, fmt.Errorf("find credit transaction: %w", err)
	}
	return &tx, nil
}

func (r *CreditRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM credit_transactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CreditTransaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row rowScanner) (domain.CreditTransaction, error) {
	var (
		tx        domain.CreditTransaction
		operation string
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Amount, &operation, &tx.MonetaryCost, &tx.Description, &tx.Reference, &tx.BalanceAfter, &tx.CreatedAt)
	if err != nil {
		return domain.CreditTransaction{}, err
	}
	tx.Operation = domain.CreditOperation(operation)
	return tx, nil
}
