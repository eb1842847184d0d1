package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/legal-search-engine/internal/config"
	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

func TestCreateMonitoringDefaultsToDaily(t *testing.T) {
	svc := newTestServices()
	res := postJSON(t, svc.handler(config.Config{}), "/v1/monitorings", map[string]string{
		"identifierType":  "case-number",
		"identifierValue": "0001234-56.2024.8.26.0100",
	}, map[string]string{userIDHeader: "u-1"})

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if svc.monitorings.created.Frequency != domain.FrequencyDaily || svc.monitorings.created.UserID != "u-1" {
		t.Fatalf("unexpected monitoring: %+v", svc.monitorings.created)
	}
}

func TestUpdateMonitoringOnlyAcceptsUserStatuses(t *testing.T) {
	svc := newTestServices()
	handler := svc.handler(config.Config{})

	for status, want := range map[string]int{"paused": http.StatusOK, "error": http.StatusBadRequest} {
		raw, _ := json.Marshal(map[string]string{"status": status})
		req := httptest.NewRequest(http.MethodPatch, "/v1/monitorings/m-1", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(userIDHeader, "u-1")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != want {
			t.Fatalf("status %q: expected %d, got %d", status, want, res.Code)
		}
	}
	if svc.monitorings.setStatus != domain.MonitoringPaused {
		t.Fatalf("expected paused, got %q", svc.monitorings.setStatus)
	}
}

func TestGetMonitoringReturnsLinkedProcess(t *testing.T) {
	svc := newTestServices()
	svc.monitorings.detail = &domain.MonitoringDetail{
		Monitoring: domain.Monitoring{ID: "m-1", UserID: "u-1", IdentifierType: domain.IdentifierCaseNumber, CaseNumber: "00012345620248260100"},
		Process:    &domain.Process{CaseNumber: "00012345620248260100", CourtName: "TJSP"},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/monitorings/m-1", nil)
	req.Header.Set(userIDHeader, "u-1")
	res := httptest.NewRecorder()
	svc.handler(config.Config{}).ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body domain.MonitoringDetail
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ID != "m-1" || body.Process == nil || body.Process.CourtName != "TJSP" {
		t.Fatalf("unexpected detail: %+v", body)
	}

	other := httptest.NewRequest(http.MethodGet, "/v1/monitorings/m-1", nil)
	other.Header.Set(userIDHeader, "u-2")
	res = httptest.NewRecorder()
	svc.handler(config.Config{}).ServeHTTP(res, other)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user, got %d", res.Code)
	}
}

func TestListAlertsRejectsMalformedUnreadFlag(t *testing.T) {
	svc := newTestServices()
	req := httptest.NewRequest(http.MethodGet, "/v1/monitorings/m-1/alerts?unread=maybe", nil)
	req.Header.Set(userIDHeader, "u-1")
	res := httptest.NewRecorder()
	svc.handler(config.Config{}).ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestListAlertsWrapsItems(t *testing.T) {
	svc := newTestServices()
	req := httptest.NewRequest(http.MethodGet, "/v1/monitorings/m-1/alerts?unread=true", nil)
	req.Header.Set(userIDHeader, "u-1")
	res := httptest.NewRecorder()
	svc.handler(config.Config{}).ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body listResponse[domain.MonitoringAlert]
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].ID != "a-1" {
		t.Fatalf("unexpected alerts: %+v", body.Items)
	}
}

func TestListMonitoringsReturnsEmptyArray(t *testing.T) {
	svc := newTestServices()
	req := httptest.NewRequest(http.MethodGet, "/v1/monitorings", nil)
	req.Header.Set(userIDHeader, "u-1")
	res := httptest.NewRecorder()
	svc.handler(config.Config{}).ServeHTTP(res, req)

	if res.Body.String() != "{\"items\":[]}\n" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}
}

func TestMarkAlertReadNotFound(t *testing.T) {
	svc := newTestServices()
	svc.monitorings.err = domain.WrapError(domain.ErrNotFound, "mark alert read", errors.New("a-9"))

	req := httptest.NewRequest(http.MethodPost, "/v1/alerts/a-9/read", nil)
	req.Header.Set(userIDHeader, "u-1")
	res := httptest.NewRecorder()
	svc.handler(config.Config{}).ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}
