package auth

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

const (
	// DefaultCookieName is the session cookie name.
	DefaultCookieName = "sessionId"
	// DefaultRememberFor is the cookie lifetime when the client asks to be
	// remembered.
	DefaultRememberFor = 30 * 24 * time.Hour
)

// SessionToken returns the session token presented by r, or "".
func (a *Authenticator) SessionToken(r *http.Request) string {
	c, err := r.Cookie(a.cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetSessionCookie writes the session cookie. Without remember the cookie
// lives for the browser session only.
func (a *Authenticator) SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, remember bool) {
	c := &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.requestIsSecure(r),
	}
	if remember && a.rememberFor > 0 {
		c.MaxAge = int(a.rememberFor / time.Second)
		c.Expires = a.now().Add(a.rememberFor)
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie on the client.
func (a *Authenticator) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.requestIsSecure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// requestIsSecure reports whether r arrived over TLS. X-Forwarded-Proto is
// honoured only from a trusted proxy.
func (a *Authenticator) requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if len(a.trustedProxies) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	for _, prefix := range a.trustedProxies {
		if prefix.Contains(addr.Unmap()) {
			return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
		}
	}
	return false
}
