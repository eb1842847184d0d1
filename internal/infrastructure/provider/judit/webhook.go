package judit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

const (
	SignatureHeader = "X-Judit-Signature"
	TimestampHeader = "X-Judit-Timestamp"
)

var eventKinds = map[string]domain.EventKind{
	"request_completed":     domain.EventJobCompleted,
	"completed":             domain.EventJobCompleted,
	"request_failed":        domain.EventJobFailed,
	"failed":                domain.EventJobFailed,
	"new_step":              domain.EventNewMovement,
	"lawsuit_step":          domain.EventNewMovement,
	"new_lawsuit":           domain.EventNewCaseFound,
	"status_changed":        domain.EventStatusChange,
	"lawsuit_archived":      domain.EventCaseArchived,
	"secrecy_changed":       domain.EventConfidentialityChange,
	"new_party":             domain.EventNewParty,
	"tracking_new_lawsuit":  domain.EventNewCaseFound,
	"tracking_new_step":     domain.EventNewMovement,
	"tracking_status_shift": domain.EventStatusChange,
}

type callbackEnvelope struct {
	EventType   string       `json:"event_type"`
	ReferenceID string       `json:"reference_id"`
	TrackingID  string       `json:"tracking_id"`
	EventID     string       `json:"event_id"`
	CreatedAt   string       `json:"created_at"`
	Data        callbackData `json:"data"`
}

type callbackData struct {
	Cases      []lawsuitPayload `json:"cases"`
	Error      string           `json:"error"`
	CaseNumber string           `json:"case_number"`
	Title      string           `json:"title"`
	Step       json.RawMessage  `json:"step"`
}

// WebhookDecoder reads judit callbacks, which are signed with HMAC-SHA256 over
// "<timestamp>.<body>".
type WebhookDecoder struct{}

func NewWebhookDecoder() *WebhookDecoder { return &WebhookDecoder{} }

func (d *WebhookDecoder) Provider() string { return Name }

func (d *WebhookDecoder) Credentials(_ []byte, header http.Header) domain.WebhookCredentials {
	creds := domain.WebhookCredentials{
		Scheme:    domain.WebhookAuthHMAC,
		Signature: strings.TrimSpace(header.Get(SignatureHeader)),
	}
	if raw := strings.TrimSpace(header.Get(TimestampHeader)); raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
			creds.Timestamp = time.Unix(secs, 0).UTC()
		}
	}
	return creds
}

func (d *WebhookDecoder) Decode(body []byte) (domain.CallbackEvent, error) {
	var envelope callbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.CallbackEvent{}, fmt.Errorf("decode judit callback: %w", err)
	}
	rawType := strings.ToLower(strings.TrimSpace(envelope.EventType))
	if rawType == "" {
		return domain.CallbackEvent{}, errors.New("decode judit callback: missing event_type")
	}

	kind, ok := eventKinds[rawType]
	if !ok {
		kind = domain.EventUnknown
	}

	event := domain.CallbackEvent{
		Provider:      Name,
		Kind:          kind,
		RawType:       rawType,
		CorrelationID: strings.TrimSpace(envelope.ReferenceID),
		TrackingID:    strings.TrimSpace(envelope.TrackingID),
		CaseNumber:    domain.NormalizeCaseNumber(envelope.Data.CaseNumber),
		DeliveryKey:   strings.TrimSpace(envelope.EventID),
		ErrorMessage:  strings.TrimSpace(envelope.Data.Error),
		Title:         strings.TrimSpace(envelope.Data.Title),
		Payload:       envelope.Data.Step,
		Timestamp:     time.Now().UTC(),
	}
	if created, err := time.Parse(time.RFC3339, strings.TrimSpace(envelope.CreatedAt)); err == nil {
		event.Timestamp = created.UTC()
	}

	for _, raw := range envelope.Data.Cases {
		if process, ok := raw.toProcess(); ok {
			event.Processes = append(event.Processes, process)
		}
	}
	if event.CaseNumber == "" && len(event.Processes) == 1 {
		event.CaseNumber = event.Processes[0].CaseNumber
	}
	if kind == domain.EventJobFailed && event.ErrorMessage == "" {
		event.ErrorMessage = "request failed"
	}
	return event, nil
}
