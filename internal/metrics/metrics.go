package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the tail/parse/store pipeline and
// the ops listener. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	linesRead       prometheus.Counter
	eventsParsed    prometheus.Counter
	eventsStored    *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	evictions       *prometheus.CounterVec
	queueLen        *prometheus.GaugeVec
	readErrors      prometheus.Counter
	truncations     prometheus.Counter
	cursor          prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poechat",
			Name:      "lines_read_total",
			Help:      "Complete log lines read from the watched file",
		}),
		eventsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poechat",
			Name:      "events_parsed_total",
			Help:      "Lines that matched the extraction pattern",
		}),
		eventsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poechat",
			Name:      "events_stored_total",
			Help:      "Chat events appended to a category queue",
		}, []string{"category"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poechat",
			Name:      "events_dropped_total",
			Help:      "Lines or events discarded before storage",
		}, []string{"reason"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poechat",
			Name:      "evictions_total",
			Help:      "Events evicted from the head of a full queue",
		}, []string{"category"}),
		queueLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "poechat",
			Name:      "queue_length",
			Help:      "Current number of events held per category",
		}, []string{"category"}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poechat",
			Name:      "read_errors_total",
			Help:      "Failed attempts to read the watched file",
		}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poechat",
			Name:      "truncations_total",
			Help:      "Times the watched file shrank or was replaced",
		}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poechat",
			Name:      "cursor_bytes",
			Help:      "Byte offset of the last fully consumed line",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poechat",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "poechat",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poechat",
			Name:      "http_rate_limited_total",
			Help:      "Number of HTTP requests rejected due to rate limiting",
		}),
	}

	registry.MustRegister(
		m.linesRead,
		m.eventsParsed,
		m.eventsStored,
		m.eventsDropped,
		m.evictions,
		m.queueLen,
		m.readErrors,
		m.truncations,
		m.cursor,
		m.requestsTotal,
		m.requestDuration,
		m.rateLimited,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) AddLinesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linesRead.Add(float64(n))
}

func (m *Metrics) IncParsed() {
	if m == nil {
		return
	}
	m.eventsParsed.Inc()
}

func (m *Metrics) IncStored(category string) {
	if m == nil {
		return
	}
	m.eventsStored.WithLabelValues(category).Inc()
}

// IncDropped counts a discarded line; reason is "unmatched" or "unclassified".
func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddEvicted(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(category).Add(float64(n))
}

func (m *Metrics) SetQueueLen(category string, n int) {
	if m == nil {
		return
	}
	m.queueLen.WithLabelValues(category).Set(float64(n))
}

func (m *Metrics) IncReadErrors() {
	if m == nil {
		return
	}
	m.readErrors.Inc()
}

func (m *Metrics) IncTruncations() {
	if m == nil {
		return
	}
	m.truncations.Inc()
}

func (m *Metrics) SetCursor(offset int64) {
	if m == nil {
		return
	}
	m.cursor.Set(float64(offset))
}

// ObserveRequest records timing and status information.
func (m *Metrics) ObserveRequest(route, method string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

// IncRateLimited increments the rate limit counter.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
