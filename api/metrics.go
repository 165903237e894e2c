package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jmcleod/sessiongate/auth"
	"github.com/jmcleod/sessiongate/pathmatch"
	"github.com/jmcleod/sessiongate/pipeline"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// Metrics stage identity. It runs after the gate so only admitted requests
// are timed.
const (
	MetricsStageName = "metrics"
	MetricsOrder     = 30
)

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 50
)

// metrics owns the Prometheus collectors and the login-failure alert window.
type metrics struct {
	logins         *prometheus.CounterVec
	gateDecisions  *prometheus.CounterVec
	registrations  prometheus.Counter
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec

	mu             sync.Mutex
	loginFailures  []time.Time
	loginWindow    time.Duration
	loginThreshold int
	alertFn        AlertFunc
	now            func() time.Time
}

func newMetrics(reg prometheus.Registerer, alertFn AlertFunc, sessionCount func() int) *metrics {
	m := &metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiongate",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiongate",
			Name:      "gate_decisions_total",
			Help:      "Authentication gate decisions.",
		}, []string{"decision"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiongate",
			Name:      "members_registered_total",
			Help:      "Members registered through signup.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiongate",
			Name:      "http_requests_total",
			Help:      "HTTP requests that passed the gate, by route and status.",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sessiongate",
			Name:      "http_request_duration_seconds",
			Help:      "Handler latency for requests that passed the gate.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		loginWindow:    defaultLoginFailureWindow,
		loginThreshold: defaultLoginFailureThreshold,
		alertFn:        alertFn,
		now:            time.Now,
	}
	reg.MustRegister(
		m.logins,
		m.gateDecisions,
		m.registrations,
		m.requests,
		m.requestLatency,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sessiongate",
			Name:      "sessions_active",
			Help:      "Live sessions in the session store.",
		}, func() float64 { return float64(sessionCount()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metrics) recordEvent(event AuditEvent) {
	switch event {
	case AuditLoginSuccess:
		m.logins.WithLabelValues("success").Inc()
	case AuditLoginFailure:
		m.logins.WithLabelValues("failure").Inc()
		m.recordLoginFailure()
	case AuditLoginRateLimited:
		m.logins.WithLabelValues("rate_limited").Inc()
	case AuditMemberRegistered:
		m.registrations.Inc()
	}
}

func (m *metrics) observeDecision(_ *http.Request, d auth.Decision) {
	m.gateDecisions.WithLabelValues(string(d)).Inc()
}

func (m *metrics) recordLoginFailure() {
	if m.alertFn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.loginFailures = append(m.loginFailures, now)
	m.loginFailures = trimWindow(m.loginFailures, now, m.loginWindow)

	if len(m.loginFailures) >= m.loginThreshold {
		m.alertFn(AlertEvent{
			Type:      AlertLoginFailureSpike,
			Message:   "login failure rate exceeds threshold",
			Count:     len(m.loginFailures),
			Threshold: m.loginThreshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		m.loginFailures = m.loginFailures[:0]
	}
}

// stage times handlers by chi route pattern. /metrics itself is skipped.
func (m *metrics) stage() pipeline.Stage {
	return pipeline.Stage{
		Name:  MetricsStageName,
		Order: MetricsOrder,
		Rules: pathmatch.MustRules(nil, []string{"/metrics"}),
		Middleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				start := m.now()
				sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
				next.ServeHTTP(sw, r)

				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					if p := rctx.RoutePattern(); p != "" {
						route = p
					}
				}
				m.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
				m.requestLatency.WithLabelValues(route).Observe(m.now().Sub(start).Seconds())
			})
		},
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
