package escavador

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/provider"
)

var eventKinds = map[string]domain.EventKind{
	"nova_movimentacao":         domain.EventNewMovement,
	"novo_processo":             domain.EventNewCaseFound,
	"processo_encontrado":       domain.EventNewCaseFound,
	"mudanca_de_status":         domain.EventStatusChange,
	"processo_arquivado":        domain.EventCaseArchived,
	"alteracao_segredo_justica": domain.EventConfidentialityChange,
	"novo_envolvido":            domain.EventNewParty,
}

type callbackPayload struct {
	Event         string `json:"event"`
	Token         string `json:"token"`
	SentAt        string `json:"sent_at"`
	UUID          string `json:"uuid"`
	Monitoramento struct {
		ID json.Number `json:"id"`
	} `json:"monitoramento"`
	Processo     *processPayload `json:"processo"`
	Movimentacao json.RawMessage `json:"movimentacao"`
	Titulo       string          `json:"titulo"`
}

// WebhookDecoder reads escavador callbacks. Escavador authenticates with a
// shared token carried in the payload.
type WebhookDecoder struct{}

func NewWebhookDecoder() *WebhookDecoder { return &WebhookDecoder{} }

func (d *WebhookDecoder) Provider() string { return Name }

func (d *WebhookDecoder) Credentials(body []byte, header http.Header) domain.WebhookCredentials {
	creds := domain.WebhookCredentials{Scheme: domain.WebhookAuthToken}

	var payload struct {
		Token  string `json:"token"`
		SentAt string `json:"sent_at"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		creds.Token = strings.TrimSpace(payload.Token)
		if ts := provider.ParseDate(payload.SentAt); ts != nil {
			creds.Timestamp = *ts
		}
	}
	if creds.Token == "" {
		creds.Token = strings.TrimSpace(strings.TrimPrefix(header.Get("Authorization"), "Bearer "))
	}
	return creds
}

func (d *WebhookDecoder) Decode(body []byte) (domain.CallbackEvent, error) {
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.CallbackEvent{}, fmt.Errorf("decode escavador callback: %w", err)
	}
	rawType := strings.ToLower(strings.TrimSpace(payload.Event))
	if rawType == "" {
		return domain.CallbackEvent{}, errors.New("decode escavador callback: missing event")
	}

	kind, ok := eventKinds[rawType]
	if !ok {
		kind = domain.EventUnknown
	}

	event := domain.CallbackEvent{
		Provider:    Name,
		Kind:        kind,
		RawType:     rawType,
		TrackingID:  payload.Monitoramento.ID.String(),
		DeliveryKey: strings.TrimSpace(payload.UUID),
		Title:       strings.TrimSpace(payload.Titulo),
		Payload:     payload.Movimentacao,
	}
	if ts := provider.ParseDate(payload.SentAt); ts != nil {
		event.Timestamp = *ts
	} else {
		event.Timestamp = time.Now().UTC()
	}
	if payload.Processo != nil {
		event.CaseNumber = domain.NormalizeCaseNumber(payload.Processo.NumeroCNJ)
		if process, ok := payload.Processo.toProcess(); ok {
			event.Processes = []domain.Process{process}
		}
	}
	return event, nil
}
