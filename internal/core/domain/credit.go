package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreditOperation string

const (
	CreditOperationSearch CreditOperation = "search"
	CreditOperationRefund CreditOperation = "refund"
	CreditOperationGrant  CreditOperation = "grant"
)

type CreditAccount struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	CostPerCredit decimal.Decimal `json:"cost_per_credit"`
	Plan          string          `json:"plan"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CreditTransaction is an append-only ledger row. Amount is negative for debits.
type CreditTransaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	Operation    CreditOperation `json:"operation"`
	MonetaryCost decimal.Decimal `json:"monetary_cost"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Reservation is a passed balance pre-check. Nothing is written until it is
// committed; the commit re-checks the balance atomically.
type Reservation struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Cost          decimal.Decimal `json:"cost"`
	CostPerCredit decimal.Decimal `json:"cost_per_credit"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (r Reservation) DebitReference() string {
	return "debit:" + r.ID
}

func (r Reservation) RefundReference() string {
	return "refund:" + r.ID
}

func (r Reservation) MonetaryCost() decimal.Decimal {
	return r.Cost.Mul(r.CostPerCredit)
}

// CreditMovement is what the store needs to apply one balance change and its
// ledger row in a single transaction.
type CreditMovement struct {
	TransactionID string
	UserID        string
	Amount        decimal.Decimal
	Operation     CreditOperation
	MonetaryCost  decimal.Decimal
	Description   string
	Reference     string
	CreatedAt     time.Time
}
