// Package metricsx registers and serves the service's prometheus
// metrics: HTTP request instrumentation plus counters for the event
// pipeline and the template worker.
package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_ingested_total",
			Help: "Offline events durably recorded, by event type.",
		},
		[]string{"event_type"},
	)

	handlerOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_handler_outcomes_total",
			Help: "Dispatch handler results, by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	workerTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_template_worker_ticks_total",
		Help: "Template worker tick count.",
	})

	templatesGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_templates_generated_total",
		Help: "Enrollment records transitioned to enrolled.",
	})
)

// Init registers the metrics in the default registry. Call once at
// startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		eventsIngested, handlerOutcomes, workerTicks, templatesGenerated,
	)
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEventIngested counts one durably recorded offline event.
func ObserveEventIngested(eventType string) {
	eventsIngested.WithLabelValues(eventType).Inc()
}

// ObserveHandlerOutcome counts a dispatch handler result; outcome is
// "ok", "error", or "skipped".
func ObserveHandlerOutcome(eventType, outcome string) {
	handlerOutcomes.WithLabelValues(eventType, outcome).Inc()
}

// ObserveWorkerTick counts one template worker tick.
func ObserveWorkerTick() {
	workerTicks.Inc()
}

// ObserveTemplateGenerated counts one pending record enrolled.
func ObserveTemplateGenerated() {
	templatesGenerated.Inc()
}

// Instrument wraps next with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
