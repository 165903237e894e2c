package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/jmcleod/sessiongate/member"
)

// RequestContext is the per-request state created by the logging stage and
// discarded when the request completes.
type RequestContext struct {
	CorrelationID string
	Method        string
	Path          string
	StartedAt     time.Time

	mu        sync.RWMutex
	principal *member.Principal
}

// SetPrincipal records the authenticated identity for this request.
func (rc *RequestContext) SetPrincipal(p member.Principal) {
	rc.mu.Lock()
	rc.principal = &p
	rc.mu.Unlock()
}

// Principal returns the identity resolved for this request, if any.
func (rc *RequestContext) Principal() (member.Principal, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.principal == nil {
		return member.Principal{}, false
	}
	return *rc.principal, true
}

type requestContextKey struct{}

// WithRequestContext returns a copy of ctx carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext attached by the logging stage.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// CorrelationID returns the correlation id for ctx, or "" outside a pipeline.
func CorrelationID(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok {
		return rc.CorrelationID
	}
	return ""
}
