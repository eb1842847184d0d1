package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
)

const defaultStatementLimit = 500

// CreditLedger reserves, commits and refunds credits. A reservation is only a
// balance pre-check; the debit itself is one conditional update in the store,
// so concurrent searches cannot both spend the same balance.
type CreditLedger struct {
	repo     ports.CreditRepository
	exporter ports.StatementExporter
	now      func() time.Time
}

func NewCreditLedger(repo ports.CreditRepository, exporter ports.StatementExporter) *CreditLedger {
	return &CreditLedger{
		repo:     repo,
		exporter: exporter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (l *CreditLedger) Reserve(ctx context.Context, userID string, cost decimal.Decimal) (*domain.Reservation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "reserve credits", errors.New("user id is required"))
	}
	if cost.IsNegative() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "reserve credits", fmt.Errorf("negative cost %s", cost))
	}

	account, err := l.repo.GetAccount(ctx, userID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrInsufficientCredits, "reserve credits", fmt.Errorf("no credit account for user %s", userID))
		}
		return nil, fmt.Errorf("load credit account: %w", err)
	}
	if account.Balance.LessThan(cost) {
		return nil, domain.WrapError(
			domain.ErrInsufficientCredits,
			"reserve credits",
			fmt.Errorf("balance %s below cost %s", account.Balance.String(), cost.String()),
		)
	}

	return &domain.Reservation{
		ID:            uuid.NewString(),
		UserID:        userID,
		Cost:          cost,
		CostPerCredit: account.CostPerCredit,
		CreatedAt:     l.now(),
	}, nil
}

// Commit debits the reserved cost and appends the ledger row atomically.
// Committing the same reservation twice is a no-op.
func (l *CreditLedger) Commit(ctx context.Context, res *domain.Reservation, description string) (*domain.CreditTransaction, error) {
	if res == nil || res.Cost.IsZero() {
		return nil, nil
	}

	tx, applied, err := l.repo.ApplyMovement(ctx, domain.CreditMovement{
		TransactionID: uuid.NewString(),
		UserID:        res.UserID,
		Amount:        res.Cost.Neg(),
		Operation:     domain.CreditOperationSearch,
		MonetaryCost:  res.MonetaryCost(),
		Description:   description,
		Reference:     res.DebitReference(),
		CreatedAt:     l.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("commit reservation %s: %w", res.ID, err)
	}
	if !applied {
		slog.InfoContext(ctx, "reservation_already_committed", "reservation_id", res.ID, "user_id", res.UserID)
	}
	return &tx, nil
}

// Refund credits back a committed reservation once. Reservations that were
// never committed have nothing to refund.
func (l *CreditLedger) Refund(ctx context.Context, res *domain.Reservation, reason string) (*domain.CreditTransaction, error) {
	if res == nil || res.ID == "" {
		return nil, nil
	}

	debit, err := l.repo.FindTransaction(ctx, res.DebitReference())
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load debit for refund: %w", err)
	}

	tx, applied, err := l.repo.ApplyMovement(ctx, domain.CreditMovement{
		TransactionID: uuid.NewString(),
		UserID:        debit.UserID,
		Amount:        debit.Amount.Neg(),
		Operation:     domain.CreditOperationRefund,
		MonetaryCost:  debit.MonetaryCost.Neg(),
		Description:   reason,
		Reference:     res.RefundReference(),
		CreatedAt:     l.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("refund reservation %s: %w", res.ID, err)
	}
	if !applied {
		slog.InfoContext(ctx, "reservation_already_refunded", "reservation_id", res.ID)
	}
	return &tx, nil
}

// Release drops a reservation that will never be committed.
func (l *CreditLedger) Release(ctx context.Context, res *domain.Reservation, reason string) {
	if res == nil {
		return
	}
	slog.InfoContext(ctx, "reservation_released",
		"reservation_id", res.ID,
		"user_id", res.UserID,
		"cost", res.Cost.String(),
		"reason", reason,
	)
}

func (l *CreditLedger) Balance(ctx context.Context, userID string) (*domain.CreditAccount, error) {
	account, err := l.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load credit account: %w", err)
	}
	return account, nil
}

func (l *CreditLedger) Statement(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 || limit > defaultStatementLimit {
		limit = defaultStatementLimit
	}
	txs, err := l.repo.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	return txs, nil
}

func (l *CreditLedger) ExportStatement(ctx context.Context, userID string, w io.Writer) error {
	if l.exporter == nil {
		return errors.New("statement exporter is not configured")
	}
	account, err := l.Balance(ctx, userID)
	if err != nil {
		return err
	}
	txs, err := l.Statement(ctx, userID, defaultStatementLimit)
	if err != nil {
		return err
	}
	if err := l.exporter.WriteStatement(w, *account, txs); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	return nil
}

// Grant adds purchased or promotional credits to an account.
func (l *CreditLedger) Grant(ctx context.Context, userID string, amount decimal.Decimal, description string) (*domain.CreditTransaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "grant credits", errors.New("user id is required"))
	}
	if !amount.IsPositive() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "grant credits", fmt.Errorf("amount must be positive, got %s", amount))
	}

	id := uuid.NewString()
	tx, _, err := l.repo.ApplyMovement(ctx, domain.CreditMovement{
		TransactionID: id,
		UserID:        userID,
		Amount:        amount,
		Operation:     domain.CreditOperationGrant,
		MonetaryCost:  decimal.Zero,
		Description:   description,
		Reference:     "grant:" + id,
		CreatedAt:     l.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("grant credits: %w", err)
	}
	return &tx, nil
}
