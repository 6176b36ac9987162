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
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	retrievalTotal     *prometheus.CounterVec
	retrievalDuration  *prometheus.HistogramVec
	documentsFound     *prometheus.HistogramVec
	noResultsTotal     *prometheus.CounterVec
	strategyFailures   *prometheus.CounterVec
	retrievalErrors    *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	classifierFallback *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "librag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "librag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by traffic control, by reason.",
		},
		[]string{"service", "reason"},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total successful retrievals by endpoint and query type.",
		},
		[]string{"service", "endpoint", "query_type"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "librag",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	documentsFound := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "librag",
			Subsystem: "retrieval",
			Name:      "documents_found",
			Help:      "Distribution of logical documents returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
		[]string{"service", "endpoint"},
	)
	noResultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "retrieval",
			Name:      "no_results_total",
			Help:      "Total retrievals that needed documents but found none.",
		},
		[]string{"service", "endpoint"},
	)
	strategyFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "retrieval",
			Name:      "strategy_failures_total",
			Help:      "Total failed retrieval strategies.",
		},
		[]string{"service", "strategy"},
	)
	retrievalErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "retrieval",
			Name:      "errors_total",
			Help:      "Total failed requests by endpoint and error kind.",
		},
		[]string{"service", "endpoint", "kind"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "librag",
			Subsystem: "resilience",
			Name:      "circuit_open",
			Help:      "1 when the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)
	classifierFallback := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "retrieval",
			Name:      "heuristic_only_total",
			Help:      "Retrievals classified without query analysis.",
		},
		[]string{"service", "endpoint"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		retrievalTotal,
		retrievalDuration,
		documentsFound,
		noResultsTotal,
		strategyFailures,
		retrievalErrors,
		breakerState,
		classifierFallback,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		rejectedTotal:      rejectedTotal,
		retrievalTotal:     retrievalTotal,
		retrievalDuration:  retrievalDuration,
		documentsFound:     documentsFound,
		noResultsTotal:     noResultsTotal,
		strategyFailures:   strategyFailures,
		retrievalErrors:    retrievalErrors,
		breakerState:       breakerState,
		classifierFallback: classifierFallback,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
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
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps label cardinality bounded to known routes.
func normalizePath(path string) string {
	switch path {
	case "/api/chat", "/api/retrieve", "/healthz", "/metrics":
		return path
	default:
		if strings.HasPrefix(path, "/api/") {
			return "/api/other"
		}
		return "other"
	}
}

// RetrievalObservation summarizes one completed retrieval for metrics.
type RetrievalObservation struct {
	QueryType        string
	DocumentsFound   int
	NeedsRetrieval   bool
	Analyzed         bool
	FailedStrategies []string
	Duration         time.Duration
}

func (m *HTTPServerMetrics) RecordRetrieval(service, endpoint string, obs RetrievalObservation) {
	queryType := obs.QueryType
	if queryType == "" {
		queryType = "unknown"
	}
	m.retrievalTotal.WithLabelValues(service, endpoint, queryType).Inc()
	m.retrievalDuration.WithLabelValues(service, endpoint).Observe(obs.Duration.Seconds())
	m.documentsFound.WithLabelValues(service, endpoint).Observe(float64(obs.DocumentsFound))
	for _, strategy := range obs.FailedStrategies {
		m.strategyFailures.WithLabelValues(service, strategy).Inc()
	}
	if !obs.NeedsRetrieval {
		return
	}
	if !obs.Analyzed {
		m.classifierFallback.WithLabelValues(service, endpoint).Inc()
	}
	if obs.DocumentsFound == 0 {
		m.noResultsTotal.WithLabelValues(service, endpoint).Inc()
	}
}

func (m *HTTPServerMetrics) RecordRetrievalError(service, endpoint, kind string, failedStrategies []string) {
	if kind == "" {
		kind = "internal"
	}
	m.retrievalErrors.WithLabelValues(service, endpoint, kind).Inc()
	for _, strategy := range failedStrategies {
		m.strategyFailures.WithLabelValues(service, strategy).Inc()
	}
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	m.rejectedTotal.WithLabelValues(service, reason).Inc()
}

// BreakerObserver adapts breaker state changes to the circuit_open gauge.
func (m *HTTPServerMetrics) BreakerObserver(service string) func(operation, from, to string) {
	return func(operation, _, to string) {
		value := 1.0
		if to == "closed" {
			value = 0
		}
		m.breakerState.WithLabelValues(service, operation).Set(value)
	}
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
