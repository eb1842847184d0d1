package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// AsyncSearchJob tracks a search that a provider answers later. It is created
// by the search orchestrator and only mutated by the webhook path or a status
// poll; once terminal it never changes again.
type AsyncSearchJob struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	IdentifierType    IdentifierType  `json:"identifier_type"`
	IdentifierValue   string          `json:"identifier_value"`
	Provider          string          `json:"provider"`
	ProviderRequestID string          `json:"provider_request_id"`
	Status            JobStatus       `json:"status"`
	ResultCount       int             `json:"result_count"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	CreditsConsumed   decimal.Decimal `json:"credits_consumed"`
	ReservationID     string          `json:"reservation_id,omitempty"`
	EstimatedMinutes  int             `json:"estimated_minutes"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

func (j AsyncSearchJob) Identifier() Identifier {
	return Identifier{Type: j.IdentifierType, Value: j.IdentifierValue}
}

// Reservation rebuilds the committed reservation so a failed job can be refunded.
func (j AsyncSearchJob) Reservation(costPerCredit decimal.Decimal) Reservation {
	return Reservation{
		ID:            j.ReservationID,
		UserID:        j.UserID,
		Cost:          j.CreditsConsumed,
		CostPerCredit: costPerCredit,
		CreatedAt:     j.CreatedAt,
	}
}

const (
	JobFailureTimeout = "timeout: provider did not deliver a result in time"
)
