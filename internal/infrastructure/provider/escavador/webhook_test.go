package escavador

import (
	"net/http"
	"testing"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

const movementCallback = `{
	"event": "nova_movimentacao",
	"token": "hook-token",
	"sent_at": "2024-03-01T12:00:00Z",
	"uuid": "d41d8cd9",
	"monitoramento": {"id": 4512},
	"processo": {"numero_cnj": "0001234-56.2024.8.26.0100"},
	"movimentacao": {"conteudo": "Juntada de petição"}
}`

func TestCredentialsFromPayload(t *testing.T) {
	creds := NewWebhookDecoder().Credentials([]byte(movementCallback), http.Header{})
	if creds.Scheme != domain.WebhookAuthToken || creds.Token != "hook-token" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
	if creds.Timestamp.IsZero() || creds.Timestamp.Unix() != 1709294400 {
		t.Fatalf("unexpected timestamp: %v", creds.Timestamp)
	}
}

func TestCredentialsFallBackToAuthorizationHeader(t *testing.T) {
	header := http.Header{}
	header.Set("Authorization", "Bearer header-token")
	creds := NewWebhookDecoder().Credentials([]byte(`{"event":"novo_processo"}`), header)
	if creds.Token != "header-token" || !creds.Timestamp.IsZero() {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestDecodeMovement(t *testing.T) {
	event, err := NewWebhookDecoder().Decode([]byte(movementCallback))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if event.Kind != domain.EventNewMovement || event.TrackingID != "4512" || event.DeliveryKey != "d41d8cd9" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.CaseNumber != "00012345620248260100" || len(event.Processes) != 1 {
		t.Fatalf("unexpected case data: %q %d", event.CaseNumber, len(event.Processes))
	}
	if len(event.Payload) == 0 {
		t.Fatal("expected movement payload to be kept")
	}
}

func TestDecodeEventKinds(t *testing.T) {
	tests := map[string]domain.EventKind{
		"novo_processo":             domain.EventNewCaseFound,
		"mudanca_de_status":         domain.EventStatusChange,
		"processo_arquivado":        domain.EventCaseArchived,
		"alteracao_segredo_justica": domain.EventConfidentialityChange,
		"novo_envolvido":            domain.EventNewParty,
		"algo_novo":                 domain.EventUnknown,
	}
	for raw, want := range tests {
		event, err := NewWebhookDecoder().Decode([]byte(`{"event":"` + raw + `"}`))
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", raw, err)
		}
		if event.Kind != want || event.RawType != raw {
			t.Fatalf("Decode(%s) kind = %s, want %s", raw, event.Kind, want)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"token":"x"}`} {
		if _, err := NewWebhookDecoder().Decode([]byte(body)); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}
