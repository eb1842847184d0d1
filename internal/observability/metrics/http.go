package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

const namespace = "legal_search"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchesTotal      *prometheus.CounterVec
	creditsDebited     *prometheus.CounterVec
	providerCallsTotal *prometheus.CounterVec
	providerDuration   *prometheus.HistogramVec
	webhooksTotal      *prometheus.CounterVec
	callbackDuration   *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Searches by identifier type and result.",
		},
		[]string{"service", "identifier_type", "result"},
	)
	creditsDebited := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "debited_total",
			Help:      "Credits charged for searches.",
		},
		[]string{"service", "identifier_type"},
	)
	providerCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls by outcome.",
		},
		[]string{"service", "provider", "outcome"},
	)
	providerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Provider call latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "provider"},
	)
	webhooksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook deliveries by provider and final status.",
		},
		[]string{"service", "provider", "status"},
	)
	callbackDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "processing_duration_seconds",
			Help:      "Callback processing duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "provider"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchesTotal,
		creditsDebited,
		providerCallsTotal,
		providerDuration,
		webhooksTotal,
		callbackDuration,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		service:            service,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		searchesTotal:      searchesTotal,
		creditsDebited:     creditsDebited,
		providerCallsTotal: providerCallsTotal,
		providerDuration:   providerDuration,
		webhooksTotal:      webhooksTotal,
		callbackDuration:   callbackDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds ids out of the path so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/searches/jobs/"):
		return "/v1/searches/jobs/{id}"
	case strings.HasPrefix(path, "/v1/webhooks/"):
		return "/v1/webhooks/{provider}"
	case strings.HasPrefix(path, "/v1/monitorings/") && strings.HasSuffix(path, "/alerts"):
		return "/v1/monitorings/{id}/alerts"
	case strings.HasPrefix(path, "/v1/monitorings/"):
		return "/v1/monitorings/{id}"
	case strings.HasPrefix(path, "/v1/alerts/"):
		return "/v1/alerts/{id}/read"
	default:
		return path
	}
}

// RecordSearch counts one finished search. result is "sync", "async",
// "cache" or the failing outcome.
func (m *HTTPServerMetrics) RecordSearch(identifierType domain.IdentifierType, result string, credits decimal.Decimal) {
	if result == "" {
		result = "unknown"
	}
	m.searchesTotal.WithLabelValues(m.service, string(identifierType), result).Inc()
	if credits.IsPositive() {
		m.creditsDebited.WithLabelValues(m.service, string(identifierType)).Add(credits.InexactFloat64())
	}
}

func (m *HTTPServerMetrics) ObserveProviderCall(provider string, outcome domain.ProviderOutcome, duration time.Duration) {
	m.providerCallsTotal.WithLabelValues(m.service, provider, string(outcome)).Inc()
	m.providerDuration.WithLabelValues(m.service, provider).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveCallback(provider string, status domain.CallbackStatus, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	m.webhooksTotal.WithLabelValues(m.service, provider, string(status)).Inc()
	m.callbackDuration.WithLabelValues(m.service, provider).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
