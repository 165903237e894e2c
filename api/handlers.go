package api

import (
	"net/http"
	"strconv"

	"github.com/jmcleod/sessiongate/auth"
)

// Home handles GET /. Guests and members get different views.
func (a *API) Home(w http.ResponseWriter, r *http.Request) {
	resp := HomeResponse{}
	if p, ok := auth.CurrentPrincipal(r); ok {
		resp.Authenticated = true
		resp.Member = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

// SessionInfo handles GET /session-info.
func (a *API) SessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.auth.Session(r)
	if !ok {
		// The gate admitted the request but the session expired since.
		writeError(w, http.StatusUnauthorized, "session expired")
		return
	}
	writeJSON(w, http.StatusOK, SessionInfoResponse{
		Member:             sess.Payload,
		CreatedAt:          sess.CreatedAt.UTC(),
		LastAccessedAt:     sess.LastAccessedAt.UTC(),
		IdleTimeoutSeconds: int64(a.idleTimeout.Seconds()),
	})
}

// ListAudit handles GET /audit. Members only see their own events.
func (a *API) ListAudit(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.CurrentPrincipal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if a.auditRepo == nil {
		writeJSON(w, http.StatusOK, AuditListResponse{Entries: []AuditEntry{}})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	entries, err := ListAuditEntries(r.Context(), a.auditRepo, AuditFilter{MemberID: p.ID, Limit: limit})
	if err != nil {
		a.writeInternalError(w, r, "failed to list audit entries", err)
		return
	}
	writeJSON(w, http.StatusOK, AuditListResponse{Entries: entries})
}

// Health handles GET /healthz.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: a.sessionCount()})
}

// Error handles GET /error, the landing page for failed requests.
func (a *API) Error(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusInternalServerError, "an unexpected error occurred")
}

// NotFound writes a JSON 404.
func (a *API) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// MethodNotAllowed writes a JSON 405.
func (a *API) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
