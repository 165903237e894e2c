package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmcleod/sessiongate/auth"
	"github.com/jmcleod/sessiongate/member"
	"github.com/jmcleod/sessiongate/pipeline"
	"github.com/jmcleod/sessiongate/storage"
	"github.com/jmcleod/sessiongate/web"
)

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	auth    *auth.Authenticator
	members *member.Service

	logger         *slog.Logger
	audit          *auditLogger
	metrics        *metrics
	registry       *prometheus.Registry
	alertFn        AlertFunc
	auditRepo      storage.Repository
	webhookURL     string
	webhookAuth    string
	webhook        *auditWebhook
	rateLimiter    *lockoutLimiter
	ipLimiter      *lockoutLimiter
	signupLimiter  *lockoutLimiter
	trustedProxies []netip.Prefix
	corsOrigins    []string
	idleTimeout    time.Duration
	gateOpts       []auth.GateOption
	routes         func(chi.Router)
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request and audit logging.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithAlertFunc registers a callback for anomaly alerts such as a spike in
// failed logins.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) { a.alertFn = fn }
}

// WithAuditRepository persists audit events to repo in addition to logging
// them.
func WithAuditRepository(repo storage.Repository) Option {
	return func(a *API) { a.auditRepo = repo }
}

// WithAuditWebhook forwards audit events to url. authHeader is optional and
// has the form "Header: Value".
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhookURL = url
		a.webhookAuth = authHeader
	}
}

// WithTrustedProxies sets the proxies whose forwarding headers are honoured
// when deriving the client IP for rate limiting.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.trustedProxies = prefixes }
}

// WithIdleTimeout reports the session idle timeout on /session-info.
func WithIdleTimeout(d time.Duration) Option {
	return func(a *API) { a.idleTimeout = d }
}

// WithGateOptions passes options to the authentication gate.
func WithGateOptions(opts ...auth.GateOption) Option {
	return func(a *API) { a.gateOpts = append(a.gateOpts, opts...) }
}

// WithRoutes mounts application routes behind the pipeline. They are
// protected unless a gate option whitelists them.
func WithRoutes(fn func(chi.Router)) Option {
	return func(a *API) { a.routes = fn }
}

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *API) { a.registry = reg }
}

// New creates a new API instance.
func New(authn *auth.Authenticator, members *member.Service, opts ...Option) *API {
	a := &API{
		auth:          authn,
		members:       members,
		rateLimiter:   newLockoutLimiter(accountLockoutPolicy),
		ipLimiter:     newLockoutLimiter(ipLockoutPolicy),
		signupLimiter: newLockoutLimiter(signupLockoutPolicy),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	a.metrics = newMetrics(a.registry, a.alertFn, a.sessionCount)
	a.audit = newAuditLogger(a.logger, a.metrics)
	if a.auditRepo != nil {
		a.audit.store = newAuditStore(a.auditRepo)
	}
	if a.webhookURL != "" {
		a.webhook = newAuditWebhook(a.webhookURL, a.webhookAuth, a.logger)
		a.audit.webhook = a.webhook
	}
	return a
}

// Close stops background work started by the API.
func (a *API) Close() {
	if a.webhook != nil {
		a.webhook.close()
	}
}

func (a *API) sessionCount() int {
	if a.auth == nil {
		return 0
	}
	return a.auth.SessionCount()
}

// Pipeline returns the request pipeline: logging, then CORS when origins are
// configured, then the authentication gate, then request metrics.
func (a *API) Pipeline() (*pipeline.Chain, error) {
	opts := append([]auth.GateOption{auth.WithDecisionObserver(a.metrics.observeDecision)}, a.gateOpts...)
	gate, err := a.auth.Gate(opts...)
	if err != nil {
		return nil, err
	}
	stages := []pipeline.Stage{pipeline.Logging(a.logger), gate, a.metrics.stage()}
	if len(a.corsOrigins) > 0 {
		stages = append(stages, corsStage(a.corsOrigins))
	}
	return pipeline.New(stages...)
}

// Router returns a chi.Router with the pipeline applied and all routes
// mounted.
func (a *API) Router() (chi.Router, error) {
	chain, err := a.Pipeline()
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	r.Use(chain.Middlewares()...)
	a.mount(r)
	return r, nil
}

// mount registers the routes without any middleware.
func (a *API) mount(r chi.Router) {
	r.NotFound(a.NotFound)
	r.MethodNotAllowed(a.MethodNotAllowed)

	r.Get("/healthz", a.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))
	r.Handle("/redoc", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	if assets, err := web.Handler(); err == nil {
		r.Get("/css/*", assets.ServeHTTP)
		r.Get("/favicon.ico", assets.ServeHTTP)
	} else {
		a.logger.Error("static assets unavailable", "error", err)
	}

	r.Get("/", a.Home)
	r.Get("/error", a.Error)

	r.Get("/login", a.LoginForm)
	r.Post("/login", a.Login)
	r.Get("/logout", a.Logout)
	r.Post("/logout", a.Logout)

	r.Get("/members/add", a.SignupForm)
	r.Post("/members/add", a.Signup)

	r.Get("/session-info", a.SessionInfo)
	r.Get("/audit", a.ListAudit)

	if a.routes != nil {
		r.Group(a.routes)
	}
}
