// Package metrics exposes Prometheus instruments for the chess service.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/park285/cheese-chess-web/internal/domain"
)

// Submission results.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

type Option func(*Manager)

func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = ns }
}

func WithHistogramBuckets(b []float64) Option {
	return func(m *Manager) {
		if len(b) > 0 {
			m.buckets = b
		}
	}
}

// WithRegistry replaces the private registry, mostly for tests.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// Manager owns every instrument on its own registry so /metrics does not
// carry the default Go collectors unless asked.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	engineLatency  *prometheus.HistogramVec
	engineErrors   *prometheus.CounterVec
	staleResponses prometheus.Counter

	submissions    *prometheus.CounterVec
	gamesFinished  *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "chess",
		buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   m.buckets,
	}, []string{"route", "method"})

	m.engineLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "engine",
		Name:      "search_duration_seconds",
		Help:      "Engine search latency by difficulty.",
		Buckets:   m.buckets,
	}, []string{"difficulty"})

	m.engineErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "engine",
		Name:      "errors_total",
		Help:      "Failed engine searches by difficulty.",
	}, []string{"difficulty"})

	m.staleResponses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "engine",
		Name:      "stale_responses_total",
		Help:      "Engine replies discarded because the position moved on.",
	})

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "leaderboard",
		Name:      "submissions_total",
		Help:      "Leaderboard inserts by difficulty and result.",
	}, []string{"difficulty", "result"})

	m.gamesFinished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "game",
		Name:      "finished_total",
		Help:      "Finished games by outcome.",
	}, []string{"outcome"})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "game",
		Name:      "active_sessions",
		Help:      "Game sessions held in memory.",
	})
}

func (m *Manager) Registry() *prometheus.Registry { return m.registry }

func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) ObserveEngineSearch(d domain.Difficulty, elapsed time.Duration, err error) {
	if err != nil {
		m.engineErrors.WithLabelValues(string(d)).Inc()
		return
	}
	m.engineLatency.WithLabelValues(string(d)).Observe(elapsed.Seconds())
}

func (m *Manager) IncStaleResponse() { m.staleResponses.Inc() }

func (m *Manager) ObserveSubmission(d domain.Difficulty, result string) {
	m.submissions.WithLabelValues(string(d), result).Inc()
}

func (m *Manager) ObserveGameFinished(o domain.Outcome) {
	m.gamesFinished.WithLabelValues(string(o)).Inc()
}

func (m *Manager) SetActiveSessions(n int) { m.activeSessions.Set(float64(n)) }

// Middleware records request count and latency. route is the registered
// pattern, never the raw path, to keep label cardinality bounded.
func (m *Manager) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes WebSocket upgrades through to the server's writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
