package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	linesCreated    prometheus.Counter
	receivingTotal  *prometheus.CounterVec
	receivedUnits   *prometheus.CounterVec
	repairsTotal    *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wms_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wms_order_lines_created_total",
		Help: "Warehouse order lines created.",
	})
	receiving := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_receiving_events_total",
		Help: "Receiving events applied, labelled by the resulting line status.",
	}, []string{"status"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_received_units_total",
		Help: "Single units received, split into good and damaged.",
	}, []string{"condition"})
	repairs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_line_repairs_total",
		Help: "Ledger replays, labelled by whether accumulator drift was found.",
	}, []string{"drifted"})
	registry.MustRegister(requests, duration, created, receiving, units, repairs)
	units.WithLabelValues("good")
	units.WithLabelValues("damaged")
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		linesCreated:    created,
		receivingTotal:  receiving,
		receivedUnits:   units,
		repairsTotal:    repairs,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordLineCreated counts a newly created order line.
func (m *Metrics) RecordLineCreated() {
	if m == nil {
		return
	}
	m.linesCreated.Inc()
}

// RecordReceiving counts one applied receiving event and its units.
func (m *Metrics) RecordReceiving(status string, good, damaged int64) {
	if m == nil {
		return
	}
	m.receivingTotal.WithLabelValues(status).Inc()
	m.receivedUnits.WithLabelValues("good").Add(float64(good))
	m.receivedUnits.WithLabelValues("damaged").Add(float64(damaged))
}

// RecordRepair counts one ledger replay.
func (m *Metrics) RecordRepair(drifted bool) {
	if m == nil {
		return
	}
	m.repairsTotal.WithLabelValues(strconv.FormatBool(drifted)).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
