package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SearchRequest struct {
	IdentifierType  IdentifierType `json:"identifierType"`
	IdentifierValue string         `json:"identifierValue"`
	UserID          string         `json:"userId"`
}

// SearchOutcome covers both response shapes of a search: records now, or a
// job handle when the provider answers asynchronously.
type SearchOutcome struct {
	Identifier      Identifier
	ResultsCount    int
	FromCache       bool
	CreditsConsumed decimal.Decimal
	Provider        string
	Records         []Process
	Job             *AsyncSearchJob
}

func (o SearchOutcome) IsAsync() bool {
	return o.Job != nil
}

type SearchHistory struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	IdentifierType  IdentifierType  `json:"identifier_type"`
	IdentifierValue string          `json:"identifier_value"`
	ResultsCount    int             `json:"results_count"`
	FromCache       bool            `json:"from_cache"`
	CreditsConsumed decimal.Decimal `json:"credits_consumed"`
	Provider        string          `json:"provider,omitempty"`
	JobID           string          `json:"job_id,omitempty"`
	Outcome         ProviderOutcome `json:"outcome,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
