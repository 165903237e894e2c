package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/jmcleod/sessiongate/internal/logging"
	"github.com/jmcleod/sessiongate/member"
	"github.com/jmcleod/sessiongate/session"
)

// ErrUnauthenticated is returned when credentials do not match. It never
// says which field was wrong.
var ErrUnauthenticated = errors.New("login id or password is incorrect")

// Authenticator orchestrates the credential verifier and the session store.
type Authenticator struct {
	verifier       member.Verifier
	store          session.Store[member.Principal]
	cookieName     string
	rememberFor    time.Duration
	trustedProxies []netip.Prefix
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) Option {
	return func(a *Authenticator) {
		if name != "" {
			a.cookieName = name
		}
	}
}

// WithRememberFor sets the cookie lifetime used when the client asks to be
// remembered. Zero keeps every cookie session-scoped.
func WithRememberFor(d time.Duration) Option {
	return func(a *Authenticator) { a.rememberFor = d }
}

// WithTrustedProxies sets the proxies whose X-Forwarded-Proto header is
// honoured when deciding the cookie Secure flag.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *Authenticator) { a.trustedProxies = prefixes }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = logger }
}

// NewAuthenticator returns an Authenticator that verifies credentials with
// verifier and keeps sessions in store.
func NewAuthenticator(verifier member.Verifier, store session.Store[member.Principal], opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:    verifier,
		store:       store,
		cookieName:  DefaultCookieName,
		rememberFor: DefaultRememberFor,
		now:         time.Now,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "auth")
	return a
}

// CookieName returns the session cookie name.
func (a *Authenticator) CookieName() string { return a.cookieName }

// Login verifies the credentials and, on success, creates a session for the
// principal. On failure no session is created.
func (a *Authenticator) Login(ctx context.Context, loginID, password string) (member.Principal, string, error) {
	p, ok, err := a.verifier.Verify(ctx, loginID, password)
	if err != nil {
		return member.Principal{}, "", fmt.Errorf("verifying credentials: %w", err)
	}
	if !ok {
		return member.Principal{}, "", ErrUnauthenticated
	}
	token, err := a.store.Create(p)
	if err != nil {
		return member.Principal{}, "", fmt.Errorf("creating session: %w", err)
	}
	return p, token, nil
}

// Logout invalidates token. It always succeeds.
func (a *Authenticator) Logout(token string) {
	if token == "" {
		return
	}
	a.store.Invalidate(token)
}

// Resolve returns the principal for the session cookie on r.
func (a *Authenticator) Resolve(r *http.Request) (member.Principal, bool) {
	return a.store.Get(a.SessionToken(r))
}

// Session returns the full session record for the cookie on r.
func (a *Authenticator) Session(r *http.Request) (session.Session[member.Principal], bool) {
	return a.store.Lookup(a.SessionToken(r))
}

// SessionCount reports the number of live sessions.
func (a *Authenticator) SessionCount() int {
	return a.store.Len()
}
