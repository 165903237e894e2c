package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmcleod/sessiongate/internal/logging"
)

// Stage names and orders used by the server.
const (
	LoggingStageName = "logging"
	LoggingOrder     = 10
)

// RequestIDHeader carries the correlation id on every response.
const RequestIDHeader = "X-Request-ID"

// LoggingOption configures the logging stage.
type LoggingOption func(*loggingStage)

// WithClock overrides the clock used for timestamps and durations.
func WithClock(now func() time.Time) LoggingOption {
	return func(l *loggingStage) { l.now = now }
}

// WithCorrelationIDs overrides correlation id generation.
func WithCorrelationIDs(gen func(time.Time) string) LoggingOption {
	return func(l *loggingStage) { l.newID = gen }
}

type loggingStage struct {
	logger *slog.Logger
	now    func() time.Time
	newID  func(time.Time) string
}

// NewCorrelationID returns a ULID for t.
func NewCorrelationID(t time.Time) string {
	id, err := ulid.New(ulid.Timestamp(t), rand.Reader)
	if err != nil {
		// crypto/rand does not fail on supported platforms.
		return fmt.Sprintf("%d", t.UnixNano())
	}
	return id.String()
}

// Logging returns the first pipeline stage. It assigns a correlation id,
// attaches a RequestContext, and logs request entry and exit. It never
// short-circuits. A panic from downstream is logged and re-raised.
func Logging(logger *slog.Logger, opts ...LoggingOption) Stage {
	l := &loggingStage{
		logger: logger,
		now:    time.Now,
		newID:  NewCorrelationID,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.Discard()
	}
	l.logger = l.logger.With("component", "http")
	return Stage{
		Name:       LoggingStageName,
		Order:      LoggingOrder,
		Middleware: l.middleware,
	}
}

func (l *loggingStage) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := l.now()
		rc := &RequestContext{
			CorrelationID: l.newID(start),
			Method:        r.Method,
			Path:          r.URL.Path,
			StartedAt:     start,
		}
		ctx := WithRequestContext(r.Context(), rc)
		w.Header().Set(RequestIDHeader, rc.CorrelationID)

		l.logger.LogAttrs(ctx, slog.LevelInfo, "request",
			slog.String("correlation_id", rc.CorrelationID),
			slog.String("method", rc.Method),
			slog.String("path", rc.Path),
		)

		rec := newStatusRecorder(w)
		defer func() {
			if v := recover(); v != nil {
				if v != http.ErrAbortHandler {
					l.logger.LogAttrs(ctx, slog.LevelError, "handler panic",
						slog.String("correlation_id", rc.CorrelationID),
						slog.String("path", rc.Path),
						slog.Any("panic", v),
					)
				}
				status := rec.status
				if !rec.wroteHeader {
					status = http.StatusInternalServerError
				}
				l.logExit(ctx, rc, status, rec.bytes)
				panic(v)
			}
			l.logExit(ctx, rc, rec.status, rec.bytes)
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

func (l *loggingStage) logExit(ctx context.Context, rc *RequestContext, status int, bytes int64) {
	attrs := []slog.Attr{
		slog.String("correlation_id", rc.CorrelationID),
		slog.String("path", rc.Path),
		slog.Int("status", status),
		slog.Int64("bytes", bytes),
		slog.Duration("duration", l.now().Sub(rc.StartedAt)),
	}
	if p, ok := rc.Principal(); ok {
		attrs = append(attrs, slog.String("member_id", p.ID))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "response", attrs...)
}
