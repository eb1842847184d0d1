package domain

import (
	"encoding/json"
	"time"
)

// EventKind is the closed set of callback events understood downstream of the
// provider decoders. Anything a decoder does not recognize becomes EventUnknown
// and keeps its raw type string only for diagnostics.
type EventKind string

const (
	EventJobCompleted          EventKind = "job_completed"
	EventJobFailed             EventKind = "job_failed"
	EventNewMovement           EventKind = "new_movement"
	EventNewCaseFound          EventKind = "new_case_found"
	EventStatusChange          EventKind = "status_change"
	EventCaseArchived          EventKind = "case_archived"
	EventConfidentialityChange EventKind = "confidentiality_change"
	EventNewParty              EventKind = "new_party"
	EventUnknown               EventKind = "unknown"
)

// IsJobEvent reports whether the event completes or fails an async search.
func (k EventKind) IsJobEvent() bool {
	return k == EventJobCompleted || k == EventJobFailed
}

// CallbackEvent is a provider callback normalized at the decoder boundary.
type CallbackEvent struct {
	Provider      string
	Kind          EventKind
	RawType       string
	CorrelationID string
	TrackingID    string
	CaseNumber    string
	Timestamp     time.Time
	DeliveryKey   string
	Processes     []Process
	ErrorMessage  string
	Title         string
	Payload       json.RawMessage
}

type WebhookAuthScheme string

const (
	WebhookAuthHMAC  WebhookAuthScheme = "hmac"
	WebhookAuthToken WebhookAuthScheme = "token"
)

// WebhookCredentials is the authentication material a decoder pulled out of
// headers or payload. Timestamp is zero when the provider sent none.
type WebhookCredentials struct {
	Scheme    WebhookAuthScheme
	Signature string
	Token     string
	Timestamp time.Time
}

type RejectReason string

const (
	RejectMissingCredentials RejectReason = "missing_credentials"
	RejectBadSignature       RejectReason = "bad_signature"
	RejectBadToken           RejectReason = "bad_token"
	RejectMissingTimestamp   RejectReason = "missing_timestamp"
	RejectStaleTimestamp     RejectReason = "stale_timestamp"
	RejectUnknownProvider    RejectReason = "unknown_provider"
	RejectMissingSecret      RejectReason = "missing_secret"
	RejectMalformedPayload   RejectReason = "malformed_payload"
)

type ValidationResult struct {
	Valid  bool
	Reason RejectReason
}

func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

func Invalid(reason RejectReason) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason}
}

type CallbackStatus string

const (
	CallbackPending    CallbackStatus = "pending"
	CallbackProcessing CallbackStatus = "processing"
	CallbackCompleted  CallbackStatus = "completed"
	CallbackFailed     CallbackStatus = "failed"
)

// CallbackLog is the audit row written for every inbound webhook attempt.
type CallbackLog struct {
	ID               string         `json:"id"`
	Provider         string         `json:"provider"`
	CorrelationID    string         `json:"correlation_id,omitempty"`
	EventType        string         `json:"event_type,omitempty"`
	DeliveryKey      string         `json:"delivery_key"`
	RawPayload       []byte         `json:"-"`
	Valid            bool           `json:"valid"`
	Status           CallbackStatus `json:"status"`
	TargetType       string         `json:"target_type,omitempty"`
	TargetID         string         `json:"target_id,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	ReceivedAt       time.Time      `json:"received_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

const (
	CallbackTargetJob        = "async_search_job"
	CallbackTargetMonitoring = "monitoring"
)

// CallbackResult tells the transport what happened to one delivery.
type CallbackResult struct {
	LogID      string
	TargetType string
	TargetID   string
	Duplicate  bool
	Applied    bool
}
