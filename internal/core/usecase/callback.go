package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
)

// WebhookEndpoint binds a provider's decoder to its authentication settings.
type WebhookEndpoint struct {
	Decoder ports.CallbackDecoder
	Scheme  domain.WebhookAuthScheme
	Secret  string
}

// CallbackProcessor authenticates, audits and applies provider callbacks.
// Every delivery leaves exactly one CallbackLog row behind.
type CallbackProcessor struct {
	endpoints   map[string]WebhookEndpoint
	validator   *WebhookValidator
	logs        ports.CallbackLogRepository
	jobs        ports.JobRepository
	monitorings ports.MonitoringRepository
	processes   ports.ProcessRepository
	tracker     *JobTracker
	notifier    *NotificationDispatcher
	deduper     ports.DeliveryDeduper
	observer    ports.CallbackObserver
	now         func() time.Time
}

type CallbackDeps struct {
	Logs        ports.CallbackLogRepository
	Jobs        ports.JobRepository
	Monitorings ports.MonitoringRepository
	Processes   ports.ProcessRepository
	Tracker     *JobTracker
	Notifier    *NotificationDispatcher
	Deduper     ports.DeliveryDeduper
	Observer    ports.CallbackObserver
}

func NewCallbackProcessor(endpoints []WebhookEndpoint, validator *WebhookValidator, deps CallbackDeps) *CallbackProcessor {
	byProvider := make(map[string]WebhookEndpoint, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint.Decoder == nil {
			continue
		}
		byProvider[endpoint.Decoder.Provider()] = endpoint
	}
	return &CallbackProcessor{
		endpoints:   byProvider,
		validator:   validator,
		logs:        deps.Logs,
		jobs:        deps.Jobs,
		monitorings: deps.Monitorings,
		processes:   deps.Processes,
		tracker:     deps.Tracker,
		notifier:    deps.Notifier,
		deduper:     deps.Deduper,
		observer:    deps.Observer,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (p *CallbackProcessor) Receive(ctx context.Context, provider string, body []byte, header http.Header) (domain.CallbackResult, error) {
	start := p.now()
	provider = strings.ToLower(strings.TrimSpace(provider))
	entry := &domain.CallbackLog{
		ID:          uuid.NewString(),
		Provider:    provider,
		DeliveryKey: deliveryKey(provider, body),
		RawPayload:  body,
		Status:      domain.CallbackPending,
		ReceivedAt:  start,
	}
	result := domain.CallbackResult{LogID: entry.ID}

	endpoint, ok := p.endpoints[provider]
	if !ok {
		return result, p.reject(ctx, entry, start, domain.RejectUnknownProvider)
	}

	verdict := p.validator.Validate(body, endpoint.Decoder.Credentials(body, header), endpoint.Secret, endpoint.Scheme)
	if !verdict.Valid {
		return result, p.reject(ctx, entry, start, verdict.Reason)
	}
	entry.Valid = true

	event, err := endpoint.Decoder.Decode(body)
	if err != nil {
		entry.Status = domain.CallbackFailed
		entry.ErrorMessage = string(domain.RejectMalformedPayload) + ": " + err.Error()
		if logErr := p.createLog(ctx, entry, start); logErr != nil {
			return result, logErr
		}
		p.observe(provider, domain.CallbackFailed, start)
		return result, domain.WrapError(domain.ErrInvalidInput, "decode callback", err)
	}
	event.Provider = provider
	entry.CorrelationID = firstNonEmpty(event.CorrelationID, event.TrackingID)
	entry.EventType = string(event.Kind)
	if event.Kind == domain.EventUnknown && event.RawType != "" {
		entry.EventType = string(event.Kind) + ":" + event.RawType
	}
	if event.DeliveryKey != "" {
		entry.DeliveryKey = provider + ":" + event.DeliveryKey
	}

	if err := p.createLog(ctx, entry, start); err != nil {
		return result, err
	}
	entry.Status = domain.CallbackProcessing
	if err := p.updateLog(ctx, entry); err != nil {
		return result, err
	}

	if p.alreadyProcessed(ctx, entry.DeliveryKey) {
		result.Duplicate = true
		entry.ErrorMessage = "duplicate delivery"
		return result, p.finish(ctx, entry, domain.CallbackCompleted, start)
	}

	applied, err := p.dispatch(ctx, event, entry)
	result.TargetType = entry.TargetType
	result.TargetID = entry.TargetID
	if err != nil {
		entry.ErrorMessage = err.Error()
		if logErr := p.finish(ctx, entry, domain.CallbackFailed, start); logErr != nil {
			return result, logErr
		}
		if domain.IsKind(err, domain.ErrTargetNotFound) {
			slog.InfoContext(ctx, "callback_target_not_found",
				"provider", provider,
				"event_type", entry.EventType,
				"correlation_id", entry.CorrelationID,
			)
			if event.Kind.IsJobEvent() {
				return result, err
			}
			return result, nil
		}
		slog.ErrorContext(ctx, "callback_processing_failed",
			"provider", provider,
			"log_id", entry.ID,
			"event_type", entry.EventType,
			"error", err,
		)
		return result, err
	}
	result.Applied = applied

	if err := p.finish(ctx, entry, domain.CallbackCompleted, start); err != nil {
		return result, err
	}
	if p.deduper != nil {
		if err := p.deduper.Remember(ctx, entry.DeliveryKey); err != nil {
			slog.WarnContext(ctx, "callback_dedupe_remember_failed", "delivery_key", entry.DeliveryKey, "error", err)
		}
	}
	return result, nil
}

func (p *CallbackProcessor) dispatch(ctx context.Context, event domain.CallbackEvent, entry *domain.CallbackLog) (bool, error) {
	if event.CorrelationID != "" {
		job, err := p.jobs.GetJobByProviderRequest(ctx, event.Provider, event.CorrelationID)
		switch {
		case err == nil:
			entry.TargetType = domain.CallbackTargetJob
			entry.TargetID = job.ID
			return p.applyToJob(ctx, event, entry, job)
		case !domain.IsKind(err, domain.ErrNotFound):
			return false, fmt.Errorf("lookup job: %w", err)
		}
	}

	if event.TrackingID != "" {
		m, err := p.monitorings.FindByTrackingID(ctx, event.Provider, event.TrackingID)
		switch {
		case err == nil:
			entry.TargetType = domain.CallbackTargetMonitoring
			entry.TargetID = m.ID
			return p.applyToMonitorings(ctx, event, entry, []domain.Monitoring{*m})
		case !domain.IsKind(err, domain.ErrNotFound):
			return false, fmt.Errorf("lookup monitoring by tracking id: %w", err)
		}
	}

	if caseNumber := domain.NormalizeCaseNumber(event.CaseNumber); caseNumber != "" {
		items, err := p.monitorings.ListActiveByCaseNumber(ctx, caseNumber)
		if err != nil {
			return false, fmt.Errorf("lookup monitorings by case number: %w", err)
		}
		if len(items) > 0 {
			entry.TargetType = domain.CallbackTargetMonitoring
			ids := make([]string, 0, len(items))
			for _, m := range items {
				ids = append(ids, m.ID)
			}
			entry.TargetID = strings.Join(ids, ",")
			return p.applyToMonitorings(ctx, event, entry, items)
		}
	}

	return false, domain.WrapError(domain.ErrTargetNotFound, "resolve callback target", errors.New("no job or monitoring matches"))
}

// applyToJob only closes a job on an explicit completion or failure event.
// Anything else addressed to the job is progress: the job moves to
// processing and the delivery is recorded without further effect.
func (p *CallbackProcessor) applyToJob(
	ctx context.Context,
	event domain.CallbackEvent,
	entry *domain.CallbackLog,
	job *domain.AsyncSearchJob,
) (bool, error) {
	if job.Status.IsTerminal() {
		slog.InfoContext(ctx, "job_already_terminal", "job_id", job.ID, "status", string(job.Status))
		return false, nil
	}

	switch event.Kind {
	case domain.EventJobCompleted:
		return p.tracker.completeJob(ctx, job, event.Processes, len(event.Processes))
	case domain.EventJobFailed:
		reason := strings.TrimSpace(event.ErrorMessage)
		if reason == "" {
			reason = "provider reported failure"
		}
		return p.tracker.failJob(ctx, job, reason)
	}

	if err := p.tracker.markProcessing(ctx, job); err != nil {
		return false, err
	}
	entry.ErrorMessage = "ignored event " + entry.EventType + " for open job"
	slog.InfoContext(ctx, "job_event_ignored",
		"job_id", job.ID,
		"event_type", entry.EventType,
	)
	return false, nil
}

func (p *CallbackProcessor) applyToMonitorings(
	ctx context.Context,
	event domain.CallbackEvent,
	entry *domain.CallbackLog,
	items []domain.Monitoring,
) (bool, error) {
	now := p.now()
	payload, err := alertPayload(event)
	if err != nil {
		return false, err
	}

	created := 0
	for _, m := range items {
		if m.Status != domain.MonitoringActive {
			slog.InfoContext(ctx, "monitoring_not_active", "monitoring_id", m.ID, "status", string(m.Status))
			continue
		}

		if event.Kind == domain.EventNewCaseFound && len(event.Processes) > 0 {
			records := PrepareProcesses(event.Processes, domain.Identifier{Type: m.IdentifierType, Value: m.IdentifierValue}, event.Provider, now)
			if err := p.processes.UpsertProcesses(ctx, records); err != nil {
				return false, fmt.Errorf("persist discovered processes: %w", err)
			}
		}

		alert := &domain.MonitoringAlert{
			ID:           uuid.NewString(),
			MonitoringID: m.ID,
			UserID:       m.UserID,
			Kind:         event.Kind,
			Title:        alertTitle(event),
			CaseNumber:   firstNonEmpty(domain.NormalizeCaseNumber(event.CaseNumber), m.CaseNumber),
			Payload:      payload,
			DedupeKey:    entry.DeliveryKey,
			Unread:       true,
			CreatedAt:    now,
		}
		inserted, err := p.monitorings.RecordAlert(ctx, alert, now)
		if err != nil {
			return false, fmt.Errorf("record alert: %w", err)
		}
		if !inserted {
			continue
		}
		created++

		if p.notifier != nil {
			if _, err := p.notifier.Notify(ctx, m.UserID, domain.NotificationMonitoringAlert, alert.Title, alertMessage(alert), alert.ID); err != nil {
				slog.ErrorContext(ctx, "alert_notification_failed", "alert_id", alert.ID, "error", err)
			}
		}
	}

	slog.InfoContext(ctx, "monitoring_event_applied",
		"provider", event.Provider,
		"event_type", string(event.Kind),
		"monitorings", len(items),
		"alerts_created", created,
	)
	return created > 0, nil
}

func (p *CallbackProcessor) alreadyProcessed(ctx context.Context, key string) bool {
	if p.deduper == nil {
		return false
	}
	seen, err := p.deduper.Seen(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "callback_dedupe_lookup_failed", "delivery_key", key, "error", err)
		return false
	}
	return seen
}

func (p *CallbackProcessor) reject(ctx context.Context, entry *domain.CallbackLog, start time.Time, reason domain.RejectReason) error {
	entry.Valid = false
	entry.Status = domain.CallbackFailed
	entry.ErrorMessage = string(reason)
	if err := p.createLog(ctx, entry, start); err != nil {
		return err
	}
	p.observe(entry.Provider, domain.CallbackFailed, start)
	slog.WarnContext(ctx, "webhook_rejected",
		"provider", entry.Provider,
		"reason", string(reason),
		"log_id", entry.ID,
	)
	return domain.WrapError(domain.ErrWebhookInvalid, "validate webhook", errors.New(string(reason)))
}

func (p *CallbackProcessor) createLog(ctx context.Context, entry *domain.CallbackLog, start time.Time) error {
	if entry.Status == domain.CallbackFailed || entry.Status == domain.CallbackCompleted {
		completed := p.now()
		entry.CompletedAt = &completed
		entry.ProcessingTimeMS = completed.Sub(start).Milliseconds()
	}
	if err := p.logs.CreateCallbackLog(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "callback_log_write_failed", "log_id", entry.ID, "provider", entry.Provider, "error", err)
		return fmt.Errorf("create callback log: %w", err)
	}
	return nil
}

func (p *CallbackProcessor) updateLog(ctx context.Context, entry *domain.CallbackLog) error {
	if err := p.logs.UpdateCallbackLog(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "callback_log_write_failed", "log_id", entry.ID, "provider", entry.Provider, "error", err)
		return fmt.Errorf("update callback log: %w", err)
	}
	return nil
}

func (p *CallbackProcessor) finish(ctx context.Context, entry *domain.CallbackLog, status domain.CallbackStatus, start time.Time) error {
	completed := p.now()
	entry.Status = status
	entry.CompletedAt = &completed
	entry.ProcessingTimeMS = completed.Sub(start).Milliseconds()
	p.observe(entry.Provider, status, start)
	return p.updateLog(ctx, entry)
}

func (p *CallbackProcessor) observe(provider string, status domain.CallbackStatus, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveCallback(provider, status, p.now().Sub(start))
	}
}

// deliveryKey identifies a delivery when the provider sends no event id.
func deliveryKey(provider string, body []byte) string {
	sum := sha256.Sum256(body)
	return provider + ":" + hex.EncodeToString(sum[:])
}

type alertBody struct {
	Kind       domain.EventKind `json:"kind"`
	RawType    string           `json:"raw_type,omitempty"`
	Provider   string           `json:"provider"`
	CaseNumber string           `json:"case_number,omitempty"`
	Title      string           `json:"title,omitempty"`
	OccurredAt *time.Time       `json:"occurred_at,omitempty"`
	Data       json.RawMessage  `json:"data,omitempty"`
}

func alertPayload(event domain.CallbackEvent) (json.RawMessage, error) {
	body := alertBody{
		Kind:       event.Kind,
		RawType:    event.RawType,
		Provider:   event.Provider,
		CaseNumber: domain.NormalizeCaseNumber(event.CaseNumber),
		Title:      event.Title,
	}
	if !event.Timestamp.IsZero() {
		ts := event.Timestamp.UTC()
		body.OccurredAt = &ts
	}
	if len(event.Payload) > 0 && json.Valid(event.Payload) {
		body.Data = event.Payload
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode alert payload: %w", err)
	}
	return raw, nil
}

var alertTitles = map[domain.EventKind]string{
	domain.EventNewMovement:           "New movement",
	domain.EventNewCaseFound:          "New case found",
	domain.EventStatusChange:          "Case status changed",
	domain.EventCaseArchived:          "Case archived",
	domain.EventConfidentialityChange: "Case confidentiality changed",
	domain.EventNewParty:              "New party added",
}

func alertTitle(event domain.CallbackEvent) string {
	if title := strings.TrimSpace(event.Title); title != "" {
		return title
	}
	if title, ok := alertTitles[event.Kind]; ok {
		return title
	}
	return "Case update"
}

func alertMessage(alert *domain.MonitoringAlert) string {
	if alert.CaseNumber == "" {
		return alert.Title
	}
	return alert.Title + ": " + domain.FormatCaseNumber(alert.CaseNumber)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
