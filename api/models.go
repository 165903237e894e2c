package api

import (
	"time"

	"github.com/jmcleod/sessiongate/member"
)

// LoginRequest is the JSON body for POST /login. HTML forms post the same
// fields as loginId, password, remember and redirectURL.
type LoginRequest struct {
	LoginID     string `json:"login_id"`
	Password    string `json:"password"`
	Remember    bool   `json:"remember,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// SignupRequest is the JSON body for POST /members/add.
type SignupRequest struct {
	LoginID  string `json:"login_id"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// FormResponse describes the fields a form posts and where it goes.
type FormResponse struct {
	Action      string   `json:"action"`
	Fields      []string `json:"fields"`
	RedirectURL string   `json:"redirect_url,omitempty"`
}

// HomeResponse is returned from GET /.
type HomeResponse struct {
	Authenticated bool              `json:"authenticated"`
	Member        *member.Principal `json:"member,omitempty"`
}

// SessionInfoResponse is returned from GET /session-info. It never includes
// the session token.
type SessionInfoResponse struct {
	Member             member.Principal `json:"member"`
	CreatedAt          time.Time        `json:"created_at"`
	LastAccessedAt     time.Time        `json:"last_accessed_at"`
	IdleTimeoutSeconds int64            `json:"idle_timeout_seconds"`
}

// AuditListResponse is returned from GET /audit.
type AuditListResponse struct {
	Entries []AuditEntry `json:"entries"`
}

// HealthResponse is returned from GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
