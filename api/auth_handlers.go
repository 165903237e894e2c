package api

import (
	"errors"
	"net/http"

	"github.com/jmcleod/sessiongate/auth"
	"github.com/jmcleod/sessiongate/internal/util"
	"github.com/jmcleod/sessiongate/member"
)

// LoginForm handles GET /login. It describes the login form and echoes the
// page the client will return to after signing in.
func (a *API) LoginForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FormResponse{
		Action:      "/login",
		Fields:      []string{"loginId", "password", "remember"},
		RedirectURL: auth.SafeRedirect(r.URL.Query().Get(auth.RedirectParam)),
	})
}

// Login handles POST /login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeLoginRequest(w, r)
	if !ok {
		return
	}
	if req.LoginID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login id and password are required")
		return
	}
	redirect := auth.SafeRedirect(firstNonEmpty(r.URL.Query().Get(auth.RedirectParam), req.RedirectURL))

	accountKey := util.Normalize(req.LoginID)
	clientIP := a.extractClientIP(r)

	// Check rate limits before any expensive work: IP first, then account.
	if blocked, retryAfter := a.ipLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "ip rate limited", accountKey, clientIP)
		writeRateLimited(w, retryAfter, "too many failed login attempts; try again later")
		return
	}
	if blocked, retryAfter := a.rateLimiter.check(accountKey); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "account rate limited", accountKey, clientIP)
		writeRateLimited(w, retryAfter, "too many failed login attempts; try again later")
		return
	}

	p, token, err := a.auth.Login(r.Context(), req.LoginID, req.Password)
	if errors.Is(err, auth.ErrUnauthenticated) {
		a.ipLimiter.recordFailure(clientIP)
		a.rateLimiter.recordFailure(accountKey)
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials", accountKey, clientIP)
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
		return
	}
	if err != nil {
		a.writeInternalError(w, r, "login failed", err)
		return
	}

	a.rateLimiter.recordSuccess(accountKey)
	a.ipLimiter.recordSuccess(clientIP)

	// At most one session per login: drop the one this client presented.
	a.auth.Logout(a.auth.SessionToken(r))
	a.auth.SetSessionCookie(w, r, token, req.Remember)
	a.audit.logEvent(AuditLoginSuccess, r, p.ID)
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// Logout handles GET and POST /logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	p, hadSession := a.auth.Resolve(r)
	a.auth.Logout(a.auth.SessionToken(r))
	a.auth.ClearSessionCookie(w, r)
	if hadSession {
		a.audit.logEvent(AuditLogout, r, p.ID)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SignupForm handles GET /members/add.
func (a *API) SignupForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FormResponse{
		Action: "/members/add",
		Fields: []string{"loginId", "name", "password"},
	})
}

// Signup handles POST /members/add.
func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	clientIP := a.extractClientIP(r)
	if blocked, retryAfter := a.signupLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditSignupRateLimited, r, "ip rate limited", "", clientIP)
		writeRateLimited(w, retryAfter, "too many requests; try again later")
		return
	}

	req, ok := decodeSignupRequest(w, r)
	if !ok {
		return
	}
	// Every attempt counts: each one runs the password KDF.
	a.signupLimiter.recordFailure(clientIP)

	m, err := a.members.Register(r.Context(), member.RegisterRequest{
		LoginID:  req.LoginID,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.audit.logEvent(AuditMemberRegistered, r, m.ID)
	writeJSON(w, http.StatusCreated, m.Principal())
}
