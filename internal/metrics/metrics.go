// Package metrics holds the Prometheus collectors for image acquisition.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	resolutions   *prometheus.CounterVec
	remoteCalls   *prometheus.HistogramVec
	rateLimited   prometheus.Counter
	queueState    *prometheus.GaugeVec
	queueDepth    prometheus.Gauge
	cacheEvicted  prometheus.Counter
	cacheDropped  prometheus.Counter
	cacheBytes    prometheus.Gauge
	httpLatencies *prometheus.HistogramVec
}

// New creates and registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_resolutions_total",
			Help: "Image requests resolved, by the layer that produced the image.",
		}, []string{"source", "kind"}),
		remoteCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "image_remote_call_seconds",
			Help:    "Latency of image generation calls, by outcome.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_queue_rate_limited_total",
			Help: "Times the generation queue paused after a rate-limit response.",
		}),
		queueState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "image_queue_state",
			Help: "1 for the queue's current state, 0 otherwise.",
		}, []string{"state"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "image_queue_depth",
			Help: "Jobs waiting in the generation queue.",
		}),
		cacheEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_cache_evictions_total",
			Help: "Entries evicted to stay within the cache budget.",
		}),
		cacheDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_cache_dropped_writes_total",
			Help: "Cache writes abandoned because the entry was too large or storage refused it.",
		}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "image_cache_bytes",
			Help: "Bytes currently accounted to the persistent image cache.",
		}),
		httpLatencies: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"path", "method", "status_code"}),
	}
	m.registry.MustRegister(
		m.resolutions,
		m.remoteCalls,
		m.rateLimited,
		m.queueState,
		m.queueDepth,
		m.cacheEvicted,
		m.cacheDropped,
		m.cacheBytes,
		m.httpLatencies,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveResolution(source, kind string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(source, kind).Inc()
}

func (m *Metrics) ObserveRemoteCall(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// SetQueueState flips the state gauge so exactly one label reads 1.
func (m *Metrics) SetQueueState(state string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.queueState.WithLabelValues(s).Set(0)
	}
	m.queueState.WithLabelValues(state).Set(1)
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) IncCacheEvicted() {
	if m == nil {
		return
	}
	m.cacheEvicted.Inc()
}

func (m *Metrics) IncCacheDropped() {
	if m == nil {
		return
	}
	m.cacheDropped.Inc()
}

func (m *Metrics) SetCacheBytes(n int64) {
	if m == nil {
		return
	}
	m.cacheBytes.Set(float64(n))
}

// Middleware records request latency per chi route pattern. Requests that
// match no route share one series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpLatencies.
			WithLabelValues(routePattern(r), r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
