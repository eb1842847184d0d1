package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/legal-search-engine/internal/adapters/http/openapi"
	"github.com/kirillkom/legal-search-engine/internal/config"
	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
	"github.com/kirillkom/legal-search-engine/internal/observability/metrics"
)

const (
	userIDHeader        = "X-User-Id"
	maxWebhookBodyBytes = 1 << 20
	maxJSONBodyBytes    = 64 << 10
)

// CircuitReporter exposes provider breaker states on /healthz.
type CircuitReporter interface {
	BreakerStates() map[string]string
}

type Services struct {
	Search        ports.SearchService
	Jobs          ports.JobTracker
	Webhooks      ports.WebhookReceiver
	Monitorings   ports.MonitoringService
	Credits       ports.CreditService
	Notifications ports.NotificationService
	Circuits      CircuitReporter
}

type Router struct {
	cfg      config.Config
	svc      Services
	metrics  *metrics.HTTPServerMetrics
	validate *validator.Validate
	contract *openapi.RequestValidator
}

func NewRouter(cfg config.Config, svc Services, m *metrics.HTTPServerMetrics) *Router {
	return &Router{
		cfg:      cfg,
		svc:      svc,
		metrics:  m,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		contract: openapi.MustNewRequestValidator(maxJSONBodyBytes),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/searches", rt.createSearch)
	mux.HandleFunc("GET /v1/searches/jobs/{id}", rt.getSearchJob)
	mux.HandleFunc("GET /v1/searches/history", rt.listSearchHistory)

	mux.HandleFunc("POST /v1/webhooks/{provider}", rt.receiveWebhook)

	mux.HandleFunc("POST /v1/monitorings", rt.createMonitoring)
	mux.HandleFunc("GET /v1/monitorings", rt.listMonitorings)
	mux.HandleFunc("GET /v1/monitorings/{id}", rt.getMonitoring)
	mux.HandleFunc("PATCH /v1/monitorings/{id}", rt.updateMonitoring)
	mux.HandleFunc("GET /v1/monitorings/{id}/alerts", rt.listAlerts)
	mux.HandleFunc("POST /v1/alerts/{id}/read", rt.markAlertRead)

	mux.HandleFunc("GET /v1/credits", rt.getCredits)
	mux.HandleFunc("GET /v1/credits/statement.xlsx", rt.exportStatement)
	mux.HandleFunc("POST /v1/credits/grants", rt.grantCredits)

	mux.HandleFunc("GET /v1/notifications", rt.listNotifications)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = rt.contractMiddleware(mux)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

type healthResponse struct {
	Status   string            `json:"status"`
	Circuits map[string]string `json:"circuits,omitempty"`
}

// healthz stays 200 while a provider circuit is open; search still answers
// through fallback or a 503 of its own.
func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if rt.svc.Circuits != nil {
		resp.Circuits = rt.svc.Circuits.BreakerStates()
		for _, state := range resp.Circuits {
			if state != "closed" {
				resp.Status = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "http_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": publicErrorMessage(err, status)})
}

// decodeJSON reads a bounded JSON body and runs struct validation on it.
func (rt *Router) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json"))
	}
	if err := rt.validate.Struct(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", validationMessage(err))
	}
	return nil
}

func validationMessage(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return errors.New(strings.Join(parts, "; "))
}

func (rt *Router) contractMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := rt.contract.Validate(r.Context(), w, r); err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "validate request", err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// queryLimit binds an optional positive limit query parameter.
func queryLimit(r *http.Request, def int) (int, error) {
	limit := def
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bind limit", err)
	}
	if limit <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bind limit", errors.New("limit must be positive"))
	}
	return limit, nil
}

// queryFlag binds an optional boolean query parameter; absent means false.
func queryFlag(r *http.Request, name string) (bool, error) {
	var flag bool
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &flag); err != nil {
		return false, domain.WrapError(domain.ErrInvalidInput, "bind "+name, err)
	}
	return flag, nil
}

// callerID is the user asserted by the upstream auth gateway.
func callerID(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		return "", domain.WrapError(domain.ErrUnauthorized, "resolve caller", errors.New(userIDHeader+" header is required"))
	}
	return userID, nil
}

func readWebhookBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read webhook body", err)
	}
	return body, nil
}
