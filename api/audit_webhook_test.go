package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessiongate/internal/logging"
)

var webhookTestTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestWebhook(url, authHeader string) *auditWebhook {
	wh := newAuditWebhook(url, authHeader, logging.Discard())
	wh.retryDelay = time.Millisecond
	return wh
}

func TestWebhook_SuccessfulDelivery(t *testing.T) {
	var received webhookEvent
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.enqueue(auditRecord{
		Event:    AuditLoginSuccess,
		MemberID: "01JXAMPLE",
		ClientIP: "127.0.0.1",
		Time:     webhookTestTime,
	})
	wh.close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "login_success", received.Event)
	assert.Equal(t, "01JXAMPLE", received.MemberID)
	assert.Equal(t, "127.0.0.1", received.ClientIP)
	assert.Equal(t, "2025-06-15T12:00:00Z", received.Timestamp)
}

func TestWebhook_RetryOn500(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.enqueue(auditRecord{Event: AuditLogout, Time: webhookTestTime})
	wh.close()

	assert.Equal(t, int32(2), attempts.Load(), "should have retried once after 500")
}

func TestWebhook_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.enqueue(auditRecord{Event: AuditLogout, Time: webhookTestTime})
	wh.close()

	assert.Equal(t, int32(1), attempts.Load(), "should not retry on 4xx")
}

func TestWebhook_Headers(t *testing.T) {
	var gotAuth, gotContentType, gotUA string
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "Authorization: Bearer my-token-123")
	wh.enqueue(auditRecord{Event: AuditLogout, Time: webhookTestTime})
	wh.close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer my-token-123", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "SessionGate-Audit-Webhook/1.0", gotUA)
}

func TestWebhook_QueueFullNonBlocking(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	wh := &auditWebhook{
		url:    srv.URL,
		client: &http.Client{Timeout: time.Second},
		logger: logging.Discard(),
		events: make(chan webhookEvent, 2),
	}
	wh.wg.Add(1)
	go wh.loop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			wh.enqueue(auditRecord{Event: AuditLoginFailure, Time: webhookTestTime})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	close(release)
	wh.close()
}

func TestWebhook_GracefulShutdownDrains(t *testing.T) {
	var count atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	for i := 0; i < 5; i++ {
		wh.enqueue(auditRecord{Event: AuditLoginFailure, Time: webhookTestTime})
	}
	wh.close()

	assert.Equal(t, int32(5), count.Load(), "all queued events should be delivered on close")
}

func TestWebhook_CloseIdempotentAndDropsLateEvents(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.close()
	wh.close()
	wh.enqueue(auditRecord{Event: AuditLogout, Time: webhookTestTime})

	assert.Zero(t, count.Load())
}

func TestWebhook_JSONPayloadOmitsEmptyFields(t *testing.T) {
	var body []byte
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, _ = io.ReadAll(r.Body)
		mu.Unlock()
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.enqueue(auditRecord{
		Event:         AuditLoginFailure,
		LoginID:       "test",
		Reason:        "invalid credentials",
		CorrelationID: "01JCORRELATION",
		Time:          webhookTestTime,
	})
	wh.close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, body)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "login_failure", parsed["event"])
	assert.Equal(t, "test", parsed["login_id"])
	assert.Equal(t, "invalid credentials", parsed["reason"])
	assert.Equal(t, "01JCORRELATION", parsed["correlation_id"])
	assert.NotContains(t, parsed, "member_id")
	assert.NotContains(t, parsed, "client_ip")
}

func TestWebhook_LogsThroughAPILogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	a := New(nil, nil, WithLogger(logging.New("info", &buf)), WithAuditWebhook(srv.URL, ""))
	require.NotNil(t, a.webhook)
	a.webhook.enqueue(auditRecord{Event: AuditLogout, Time: webhookTestTime})
	a.Close()

	out := buf.String()
	assert.Contains(t, out, `"msg":"client error"`)
	assert.Contains(t, out, `"component":"audit_webhook"`)
	assert.Contains(t, out, `"status":400`)
}

func TestWebhook_DisabledWithoutURL(t *testing.T) {
	a := New(nil, nil, WithLogger(logging.Discard()), WithAuditWebhook("", ""))
	assert.Nil(t, a.webhook)
	assert.Nil(t, a.audit.webhook)
}
