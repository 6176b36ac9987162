package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics aggregates retrieval events consumed by the analytics worker.
type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal       *prometheus.CounterVec
	eventsInFlight    prometheus.Gauge
	pipelineDuration  *prometheus.HistogramVec
	documentsFound    *prometheus.HistogramVec
	strategyFailures  *prometheus.CounterVec
	emptyResultsTotal *prometheus.CounterVec
	eventLag          *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "analytics",
			Name:      "events_total",
			Help:      "Total consumed retrieval events by query type and content filter.",
		},
		[]string{"service", "query_type", "filter"},
	)
	eventsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "librag",
			Subsystem: "analytics",
			Name:      "events_in_flight",
			Help:      "Number of retrieval events being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "librag",
			Subsystem: "analytics",
			Name:      "chat_duration_seconds",
			Help:      "Reported end-to-end chat duration by query type.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"service", "query_type"},
	)
	documentsFound := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "librag",
			Subsystem: "analytics",
			Name:      "documents_found",
			Help:      "Reported logical documents per answered chat.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
		[]string{"service", "query_type"},
	)
	strategyFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "analytics",
			Name:      "strategy_failures_total",
			Help:      "Reported failed strategies in answered chats.",
		},
		[]string{"service", "strategy"},
	)
	emptyResultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "librag",
			Subsystem: "analytics",
			Name:      "empty_results_total",
			Help:      "Answered chats that ran strategies but found no documents.",
		},
		[]string{"service", "query_type"},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "librag",
			Subsystem: "analytics",
			Name:      "event_lag_seconds",
			Help:      "Delay between event creation and consumption.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	registry.MustRegister(eventsTotal, eventsInFlight, pipelineDuration, documentsFound, strategyFailures, emptyResultsTotal, eventLag)

	return &WorkerMetrics{
		registry:          registry,
		eventsTotal:       eventsTotal,
		eventsInFlight:    eventsInFlight,
		pipelineDuration:  pipelineDuration,
		documentsFound:    documentsFound,
		strategyFailures:  strategyFailures,
		emptyResultsTotal: emptyResultsTotal,
		eventLag:          eventLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.eventsInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent() {
	m.eventsInFlight.Dec()
}

// EventObservation is the worker-side view of one retrieval event.
type EventObservation struct {
	QueryType        string
	Filter           string
	Strategies       int
	FailedStrategies []string
	DocumentsFound   int
	Duration         time.Duration
	CreatedAt        time.Time
}

func (m *WorkerMetrics) ObserveEvent(service string, obs EventObservation, now time.Time) {
	queryType := obs.QueryType
	if queryType == "" {
		queryType = "unknown"
	}
	filter := obs.Filter
	if filter == "" {
		filter = "all"
	}

	m.eventsTotal.WithLabelValues(service, queryType, filter).Inc()
	m.pipelineDuration.WithLabelValues(service, queryType).Observe(obs.Duration.Seconds())
	m.documentsFound.WithLabelValues(service, queryType).Observe(float64(obs.DocumentsFound))
	for _, strategy := range obs.FailedStrategies {
		m.strategyFailures.WithLabelValues(service, strategy).Inc()
	}
	if obs.Strategies > 0 && obs.DocumentsFound == 0 {
		m.emptyResultsTotal.WithLabelValues(service, queryType).Inc()
	}
	if !obs.CreatedAt.IsZero() {
		if lag := now.Sub(obs.CreatedAt); lag >= 0 {
			m.eventLag.WithLabelValues(service).Observe(lag.Seconds())
		}
	}
}
