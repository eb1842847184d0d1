package domain

import (
	"encoding/json"
	"time"
)

type MonitoringStatus string

const (
	MonitoringActive MonitoringStatus = "active"
	MonitoringPaused MonitoringStatus = "paused"
	MonitoringError  MonitoringStatus = "error"
)

func (s MonitoringStatus) Valid() bool {
	switch s {
	case MonitoringActive, MonitoringPaused, MonitoringError:
		return true
	default:
		return false
	}
}

type MonitoringFrequency string

const (
	FrequencyDaily   MonitoringFrequency = "daily"
	FrequencyWeekly  MonitoringFrequency = "weekly"
	FrequencyMonthly MonitoringFrequency = "monthly"
)

func (f MonitoringFrequency) Interval() time.Duration {
	switch f {
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (f MonitoringFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}

// Monitoring is a standing per-user subscription on one identifier.
type Monitoring struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"user_id"`
	IdentifierType     IdentifierType      `json:"identifier_type"`
	IdentifierValue    string              `json:"identifier_value"`
	CaseNumber         string              `json:"case_number,omitempty"`
	Provider           string              `json:"provider,omitempty"`
	ProviderTrackingID string              `json:"provider_tracking_id,omitempty"`
	Frequency          MonitoringFrequency `json:"frequency"`
	Status             MonitoringStatus    `json:"status"`
	AlertsCount        int                 `json:"alerts_count"`
	LastCheckedAt      *time.Time          `json:"last_checked_at,omitempty"`
	NextCheckAt        *time.Time          `json:"next_check_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// MonitoringDetail is a monitoring with the process it follows, when the
// store already holds that process.
type MonitoringDetail struct {
	Monitoring
	Process *Process `json:"process,omitempty"`
}

// MonitoringAlert is append-only; only its read flag changes.
type MonitoringAlert struct {
	ID           string          `json:"id"`
	MonitoringID string          `json:"monitoring_id"`
	UserID       string          `json:"user_id"`
	Kind         EventKind       `json:"kind"`
	Title        string          `json:"title"`
	CaseNumber   string          `json:"case_number,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	DedupeKey    string          `json:"-"`
	Unread       bool            `json:"unread"`
	CreatedAt    time.Time       `json:"created_at"`
}
