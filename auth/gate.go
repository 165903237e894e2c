package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmcleod/sessiongate/pathmatch"
	"github.com/jmcleod/sessiongate/pipeline"
)

// Gate stage identity.
const (
	GateStageName = "auth-gate"
	GateOrder     = 20
)

// DefaultLoginPath is where rejected requests are sent.
const DefaultLoginPath = "/login"

// RedirectParam is the query parameter carrying the originally requested path.
const RedirectParam = "redirectURL"

// DefaultWhitelist lists the paths reachable without a session.
var DefaultWhitelist = []string{
	"/",
	"/login",
	"/logout",
	"/members/add",
	"/css/**",
	"/*.ico",
	"/error",
	"/healthz",
	"/metrics",
	"/openapi.yaml",
	"/docs",
	"/redoc",
}

// Decision is the outcome of the gate for one request.
type Decision string

const (
	DecisionWhitelisted   Decision = "whitelisted"
	DecisionAuthenticated Decision = "authenticated"
	DecisionRejected      Decision = "rejected"
)

// GateOption configures the gate stage.
type GateOption func(*gate)

// WithWhitelist replaces the default whitelist.
func WithWhitelist(patterns ...string) GateOption {
	return func(g *gate) { g.whitelist = patterns }
}

// WithExtraWhitelist adds patterns to the whitelist.
func WithExtraWhitelist(patterns ...string) GateOption {
	return func(g *gate) { g.whitelist = append(g.whitelist, patterns...) }
}

// WithLoginPath sets the redirect target for rejected requests.
func WithLoginPath(path string) GateOption {
	return func(g *gate) { g.loginPath = path }
}

// WithDecisionObserver registers fn to be called with every gate decision.
func WithDecisionObserver(fn func(*http.Request, Decision)) GateOption {
	return func(g *gate) { g.observe = fn }
}

type gate struct {
	auth      *Authenticator
	whitelist []string
	loginPath string
	protected *pathmatch.Rules
	observe   func(*http.Request, Decision)
	logger    *slog.Logger
}

// Gate returns the authentication stage. Whitelisted paths pass without a
// session lookup; any other path needs a live session or is redirected to
// the login page.
func (a *Authenticator) Gate(opts ...GateOption) (pipeline.Stage, error) {
	g := &gate{
		auth:      a,
		whitelist: append([]string(nil), DefaultWhitelist...),
		loginPath: DefaultLoginPath,
		observe:   func(*http.Request, Decision) {},
		logger:    a.logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	protected, err := pathmatch.NewRules(nil, g.whitelist)
	if err != nil {
		return pipeline.Stage{}, err
	}
	g.protected = protected
	return pipeline.Stage{
		Name:       GateStageName,
		Order:      GateOrder,
		Middleware: g.middleware,
	}, nil
}

func (g *gate) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(withResolver(r.Context(), g.auth))

		if !g.protected.Applies(r.URL.Path) {
			g.observe(r, DecisionWhitelisted)
			next.ServeHTTP(w, r)
			return
		}

		p, ok := g.auth.Resolve(r)
		if !ok {
			g.observe(r, DecisionRejected)
			if r.Context().Err() != nil {
				return
			}
			g.logger.LogAttrs(r.Context(), slog.LevelDebug, "unauthenticated request",
				slog.String("correlation_id", pipeline.CorrelationID(r.Context())),
				slog.String("path", r.URL.Path),
			)
			http.Redirect(w, r, LoginRedirect(g.loginPath, r.URL.Path), http.StatusFound)
			return
		}

		rc, ok := pipeline.FromContext(r.Context())
		if !ok {
			rc = &pipeline.RequestContext{Method: r.Method, Path: r.URL.Path, StartedAt: time.Now()}
			r = r.WithContext(pipeline.WithRequestContext(r.Context(), rc))
		}
		rc.SetPrincipal(p)
		g.observe(r, DecisionAuthenticated)
		next.ServeHTTP(w, r)
	})
}

// LoginRedirect builds loginPath?redirectURL=<path>. Slashes are left
// unescaped; they are legal in a query component.
func LoginRedirect(loginPath, path string) string {
	return loginPath + "?" + RedirectParam + "=" + strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
}

// SafeRedirect returns target if it is a local absolute path and "/"
// otherwise.
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return target
}

type resolverKey struct{}

func withResolver(ctx context.Context, a *Authenticator) context.Context {
	return context.WithValue(ctx, resolverKey{}, a)
}
