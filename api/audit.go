package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/sessiongate/pipeline"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess      AuditEvent = "login_success"
	AuditLoginFailure      AuditEvent = "login_failure"
	AuditLoginRateLimited  AuditEvent = "login_rate_limited"
	AuditLogout            AuditEvent = "logout"
	AuditMemberRegistered  AuditEvent = "member_registered"
	AuditSignupRateLimited AuditEvent = "signup_rate_limited"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Events are also counted for alerting and, when configured, persisted and
// forwarded to a webhook.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metrics
	store   *auditStore
	webhook *auditWebhook
	now     func() time.Time
}

func newAuditLogger(logger *slog.Logger, m *metrics) *auditLogger {
	return &auditLogger{
		logger:  logger.With("component", "audit"),
		metrics: m,
		now:     time.Now,
	}
}

// auditRecord is one audit event as handed to the sinks.
type auditRecord struct {
	Event         AuditEvent
	MemberID      string
	LoginID       string
	ClientIP      string
	Reason        string
	CorrelationID string
	Time          time.Time
}

// log writes a structured audit log entry and fans it out to the sinks.
func (al *auditLogger) log(r *http.Request, rec auditRecord) {
	rec.Time = al.now().UTC()
	rec.CorrelationID = pipeline.CorrelationID(r.Context())

	attrs := []slog.Attr{
		slog.String("event", string(rec.Event)),
		slog.String("correlation_id", rec.CorrelationID),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if rec.MemberID != "" {
		attrs = append(attrs, slog.String("member_id", rec.MemberID))
	}
	if rec.LoginID != "" {
		attrs = append(attrs, slog.String("login_id", rec.LoginID))
	}
	if rec.ClientIP != "" {
		attrs = append(attrs, slog.String("client_ip", rec.ClientIP))
	}
	if rec.Reason != "" {
		attrs = append(attrs, slog.String("reason", rec.Reason))
	}
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", attrs...)

	if al.metrics != nil {
		al.metrics.recordEvent(rec.Event)
	}
	if al.store != nil {
		if err := al.store.append(r.Context(), rec); err != nil {
			al.logger.LogAttrs(r.Context(), slog.LevelWarn, "persisting audit event failed",
				slog.String("event", string(rec.Event)),
				slog.String("error", err.Error()),
			)
		}
	}
	if al.webhook != nil {
		al.webhook.enqueue(rec)
	}
}

// logEvent is a convenience for events tied to a member.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, memberID string) {
	al.log(r, auditRecord{Event: event, MemberID: memberID})
}

// logFailure logs a failed or refused attempt.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason, loginID, clientIP string) {
	al.log(r, auditRecord{Event: event, Reason: reason, LoginID: loginID, ClientIP: clientIP})
}
