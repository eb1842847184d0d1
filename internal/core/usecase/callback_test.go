package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

const testSecret = "hook-secret"

func (h *asyncHarness) processor(decoder *decoderFake, deduper *deduperFake) *CallbackProcessor {
	validator := NewWebhookValidator(5 * time.Minute)
	validator.now = fixedClock(h.now)
	deps := CallbackDeps{
		Logs:        h.logs,
		Jobs:        h.jobs,
		Monitorings: h.monitorings,
		Processes:   h.processes,
		Tracker:     h.tracker,
		Notifier:    NewNotificationDispatcher(h.notifications, nil),
	}
	if deduper != nil {
		deps.Deduper = deduper
	}
	p := NewCallbackProcessor([]WebhookEndpoint{{Decoder: decoder, Scheme: domain.WebhookAuthHMAC, Secret: testSecret}}, validator, deps)
	p.now = fixedClock(h.now)
	return p
}

func signedDecoder(body []byte, at time.Time, event domain.CallbackEvent) *decoderFake {
	return &decoderFake{
		provider: "judit",
		creds:    domain.WebhookCredentials{Signature: SignWebhook(body, testSecret, at), Timestamp: at},
		event:    event,
	}
}

func (h *asyncHarness) seedMonitoring(id, caseNumber, trackingID string) {
	_ = h.monitorings.CreateMonitoring(context.Background(), &domain.Monitoring{
		ID:                 id,
		UserID:             "user-1",
		IdentifierType:     domain.IdentifierCaseNumber,
		IdentifierValue:    caseNumber,
		CaseNumber:         caseNumber,
		Provider:           "judit",
		ProviderTrackingID: trackingID,
		Frequency:          domain.FrequencyDaily,
		Status:             domain.MonitoringActive,
	})
}

func TestCallbackCompletesAsyncSearch(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-001", h.now.Add(-5*time.Minute))
	_, _ = h.jobs.MarkJobProcessing(context.Background(), job.ID, h.now)

	body := []byte(`{"event":"completed","request_id":"req-001"}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:          domain.EventJobCompleted,
		CorrelationID: "req-001",
		Processes:     []domain.Process{sampleProcess("00000011120248260100"), sampleProcess("00000022220248260100")},
	})

	result, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, http.Header{})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !result.Applied || result.TargetType != domain.CallbackTargetJob || result.TargetID != job.ID {
		t.Fatalf("unexpected result: %+v", result)
	}
	stored, _ := h.jobs.GetJob(context.Background(), job.ID)
	if stored.Status != domain.JobStatusCompleted || stored.ResultCount != 2 {
		t.Fatalf("unexpected job: %+v", stored)
	}
	if h.processes.count() != 2 {
		t.Fatalf("expected 2 processes, got %d", h.processes.count())
	}
	if len(h.notifications.items) != 1 || h.notifications.items[0].ReferenceID != job.ID {
		t.Fatalf("expected one notification referencing the job, got %+v", h.notifications.items)
	}
	entry := h.logs.get(result.LogID)
	if entry.Status != domain.CallbackCompleted || !entry.Valid {
		t.Fatalf("unexpected log: %+v", entry)
	}
	if bal := h.credits.balance("user-1"); !bal.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("webhook must not bill again, balance %s", bal)
	}
}

func TestCallbackOnTerminalJobIsNoop(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-001", h.now.Add(-5*time.Minute))
	_, _ = h.jobs.CompleteJob(context.Background(), job.ID, 1, h.now)

	body := []byte(`{"event":"completed"}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:          domain.EventJobCompleted,
		CorrelationID: "req-001",
		Processes:     []domain.Process{sampleProcess("00000011120248260100")},
	})

	result, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if result.Applied || h.processes.count() != 0 || h.notifications.count() != 0 {
		t.Fatalf("terminal job must not change: result=%+v processes=%d", result, h.processes.count())
	}
}

func TestCallbackProgressEventKeepsJobOpen(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-001", h.now.Add(-5*time.Minute))

	body := []byte(`{"event_type":"response_created","reference_id":"req-001"}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:          domain.EventUnknown,
		RawType:       "response_created",
		CorrelationID: "req-001",
	})

	result, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if result.Applied || result.TargetID != job.ID {
		t.Fatalf("unexpected result: %+v", result)
	}
	stored, _ := h.jobs.GetJob(context.Background(), job.ID)
	if stored.Status != domain.JobStatusProcessing || stored.ResultCount != 0 {
		t.Fatalf("progress event must only mark the job processing, got %+v", stored)
	}
	if h.notifications.count() != 0 {
		t.Fatalf("progress event must not notify, got %d", h.notifications.count())
	}
	if entry := h.logs.get(result.LogID); entry.Status != domain.CallbackCompleted {
		t.Fatalf("unexpected log: %+v", entry)
	}

	body = []byte(`{"event_type":"request_completed","reference_id":"req-001"}`)
	decoder = signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:          domain.EventJobCompleted,
		CorrelationID: "req-001",
		Processes:     []domain.Process{sampleProcess("00000011120248260100")},
	})
	if _, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil); err != nil {
		t.Fatalf("Receive() completion error = %v", err)
	}
	stored, _ = h.jobs.GetJob(context.Background(), job.ID)
	if stored.Status != domain.JobStatusCompleted || stored.ResultCount != 1 || h.processes.count() != 1 {
		t.Fatalf("completion after progress must apply, got %+v", stored)
	}
}

func TestCallbackMonitoringKindDoesNotCloseJob(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-002", h.now.Add(-5*time.Minute))

	body := []byte(`{"event":"movement"}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:          domain.EventNewMovement,
		CorrelationID: "req-002",
	})
	if _, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	stored, _ := h.jobs.GetJob(context.Background(), job.ID)
	if stored.Status.IsTerminal() {
		t.Fatalf("movement event must not close the job, got %s", stored.Status)
	}
}

func TestCallbackJobFailureWritesNoProcesses(t *testing.T) {
	h := newAsyncHarness(JobPolicy{RefundFailed: true})
	job := h.seedCommittedJob(t, "req-007", h.now.Add(-5*time.Minute))

	body := []byte(`{"event":"failed"}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:          domain.EventJobFailed,
		CorrelationID: "req-007",
		ErrorMessage:  "court unavailable",
		Processes:     []domain.Process{sampleProcess("00000011120248260100")},
	})

	if _, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	stored, _ := h.jobs.GetJob(context.Background(), job.ID)
	if stored.Status != domain.JobStatusFailed || stored.ErrorMessage != "court unavailable" {
		t.Fatalf("unexpected job: %+v", stored)
	}
	if h.processes.count() != 0 {
		t.Fatal("failed job must not write processes")
	}
	if bal := h.credits.balance("user-1"); !bal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected refund, balance %s", bal)
	}
}

func TestCallbackReplayIsRejectedWithoutMutation(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	job := h.seedCommittedJob(t, "req-001", h.now.Add(-time.Hour))

	body := []byte(`{"event":"completed"}`)
	sentAt := h.now.Add(-30 * time.Minute)
	decoder := signedDecoder(body, sentAt, domain.CallbackEvent{
		Kind:          domain.EventJobCompleted,
		CorrelationID: "req-001",
		Processes:     []domain.Process{sampleProcess("00000011120248260100")},
	})

	result, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil)
	if !errors.Is(err, domain.ErrWebhookInvalid) {
		t.Fatalf("expected webhook invalid, got %v", err)
	}
	entry := h.logs.get(result.LogID)
	if entry.Valid || entry.Status != domain.CallbackFailed || entry.ErrorMessage != string(domain.RejectStaleTimestamp) {
		t.Fatalf("rejection must be logged: %+v", entry)
	}
	stored, _ := h.jobs.GetJob(context.Background(), job.ID)
	if stored.Status != domain.JobStatusPending || h.processes.count() != 0 {
		t.Fatalf("rejected webhook must not mutate state: %+v", stored)
	}
}

func TestCallbackUnknownProviderIsLogged(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	decoder := signedDecoder(nil, h.now, domain.CallbackEvent{})

	result, err := h.processor(decoder, nil).Receive(context.Background(), "nobody", []byte(`{}`), nil)
	if !errors.Is(err, domain.ErrWebhookInvalid) {
		t.Fatalf("expected webhook invalid, got %v", err)
	}
	if h.logs.get(result.LogID).ErrorMessage != string(domain.RejectUnknownProvider) {
		t.Fatalf("unexpected log: %+v", h.logs.get(result.LogID))
	}
}

func TestCallbackMalformedPayload(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	body := []byte(`not json`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{})
	decoder.err = errors.New("unexpected token")

	result, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	entry := h.logs.get(result.LogID)
	if !entry.Valid || entry.Status != domain.CallbackFailed {
		t.Fatalf("unexpected log: %+v", entry)
	}
}

func TestCallbackTargetNotFound(t *testing.T) {
	tests := []struct {
		name    string
		kind    domain.EventKind
		wantErr bool
	}{
		{name: "job event answers not found", kind: domain.EventJobCompleted, wantErr: true},
		{name: "monitoring event is a no-op", kind: domain.EventNewMovement, wantErr: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newAsyncHarness(JobPolicy{})
			body := []byte(`{}`)
			decoder := signedDecoder(body, h.now, domain.CallbackEvent{
				Kind:          tc.kind,
				CorrelationID: "req-missing",
				CaseNumber:    "9999999-99.2024.8.26.0100",
			})

			result, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil)
			if tc.wantErr != errors.Is(err, domain.ErrTargetNotFound) {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			entry := h.logs.get(result.LogID)
			if entry.Status != domain.CallbackFailed {
				t.Fatalf("log must be failed, got %s", entry.Status)
			}
		})
	}
}

func TestCallbackDoubleDeliveryCreatesOneAlert(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	h.seedMonitoring("mon-1", "00000011120248260100", "track-1")

	body := []byte(`{"event":"movement","tracking_id":"track-1"}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:        domain.EventNewMovement,
		TrackingID:  "track-1",
		CaseNumber:  "0000001-11.2024.8.26.0100",
		DeliveryKey: "evt-1",
	})
	p := h.processor(decoder, nil)

	first, err := p.Receive(context.Background(), "judit", body, nil)
	if err != nil {
		t.Fatalf("first Receive() error = %v", err)
	}
	second, err := p.Receive(context.Background(), "judit", body, nil)
	if err != nil {
		t.Fatalf("second Receive() error = %v", err)
	}
	if !first.Applied || second.Applied {
		t.Fatalf("only the first delivery may apply: first=%+v second=%+v", first, second)
	}
	if h.monitorings.alertCount() != 1 {
		t.Fatalf("expected one alert, got %d", h.monitorings.alertCount())
	}
	m, _ := h.monitorings.GetMonitoring(context.Background(), "mon-1")
	if m.AlertsCount != 1 || m.LastCheckedAt == nil {
		t.Fatalf("unexpected monitoring: %+v", m)
	}
	if h.notifications.count() != 1 {
		t.Fatalf("expected one notification, got %d", h.notifications.count())
	}
	if h.logs.count() != 2 {
		t.Fatalf("every delivery must be logged, got %d", h.logs.count())
	}
}

func TestCallbackDeduperShortCircuits(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	h.seedMonitoring("mon-1", "00000011120248260100", "track-1")

	body := []byte(`{"event":"movement"}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:        domain.EventNewMovement,
		TrackingID:  "track-1",
		DeliveryKey: "evt-2",
	})
	deduper := &deduperFake{}
	p := h.processor(decoder, deduper)

	if _, err := p.Receive(context.Background(), "judit", body, nil); err != nil {
		t.Fatalf("first Receive() error = %v", err)
	}
	second, err := p.Receive(context.Background(), "judit", body, nil)
	if err != nil {
		t.Fatalf("second Receive() error = %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected duplicate, got %+v", second)
	}
	if len(deduper.remembered) != 1 || deduper.remembered[0] != "judit:evt-2" {
		t.Fatalf("unexpected remembered keys: %v", deduper.remembered)
	}
	if h.logs.get(second.LogID).Status != domain.CallbackCompleted {
		t.Fatal("duplicate delivery must be logged as completed")
	}
}

func TestCallbackCaseNumberFansOutToActiveMonitorings(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	h.seedMonitoring("mon-1", "00000011120248260100", "")
	h.seedMonitoring("mon-2", "00000011120248260100", "")
	h.seedMonitoring("mon-3", "00000011120248260100", "")
	_ = h.monitorings.UpdateMonitoringStatus(context.Background(), "mon-3", domain.MonitoringPaused, h.now)

	body := []byte(`{"event":"new_case"}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:       domain.EventNewCaseFound,
		CaseNumber: "0000001-11.2024.8.26.0100",
		Processes:  []domain.Process{sampleProcess("0000001-11.2024.8.26.0100")},
	})

	result, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if result.TargetType != domain.CallbackTargetMonitoring {
		t.Fatalf("unexpected target: %+v", result)
	}
	if h.monitorings.alertCount() != 2 {
		t.Fatalf("expected 2 alerts, got %d", h.monitorings.alertCount())
	}
	if h.processes.count() != 1 {
		t.Fatalf("case discovery must upsert the process, got %d", h.processes.count())
	}
}

func TestCallbackLogWriteFailureIsReturned(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	h.logs.createErr = errors.New("db down")
	body := []byte(`{}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{Kind: domain.EventNewMovement, TrackingID: "x"})

	_, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil)
	if err == nil || errors.Is(err, domain.ErrTargetNotFound) {
		t.Fatalf("log write failure must surface, got %v", err)
	}
}

func TestCallbackUnknownEventStillAlerts(t *testing.T) {
	h := newAsyncHarness(JobPolicy{})
	h.seedMonitoring("mon-1", "00000011120248260100", "track-1")

	body := []byte(`{"event":"something_new"}`)
	decoder := signedDecoder(body, h.now, domain.CallbackEvent{
		Kind:       domain.EventUnknown,
		RawType:    "something_new",
		TrackingID: "track-1",
	})

	result, err := h.processor(decoder, nil).Receive(context.Background(), "judit", body, nil)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if h.monitorings.alertCount() != 1 {
		t.Fatalf("expected one alert, got %d", h.monitorings.alertCount())
	}
	if got := h.logs.get(result.LogID).EventType; got != "unknown:something_new" {
		t.Fatalf("unexpected event type %q", got)
	}
}
