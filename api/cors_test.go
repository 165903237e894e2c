package api_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessiongate/api"
	"github.com/jmcleod/sessiongate/auth"
	"github.com/jmcleod/sessiongate/internal/logging"
	"github.com/jmcleod/sessiongate/member"
	"github.com/jmcleod/sessiongate/pipeline"
	"github.com/jmcleod/sessiongate/session"
	"github.com/jmcleod/sessiongate/storage/memory"
)

func newCORSRouter(t *testing.T, buf *bytes.Buffer, origins ...string) http.Handler {
	t.Helper()
	members := member.NewService(member.NewRepository(memory.NewRepository()))
	store := session.New[member.Principal]()
	t.Cleanup(store.Close)

	a := api.New(auth.NewAuthenticator(members, store), members,
		api.WithLogger(logging.New("info", buf)),
		api.WithCORS(origins...),
	)
	t.Cleanup(a.Close)
	router, err := a.Router()
	require.NoError(t, err)
	return router
}

func TestCORSStageOrder(t *testing.T) {
	members := member.NewService(member.NewRepository(memory.NewRepository()))
	store := session.New[member.Principal]()
	t.Cleanup(store.Close)
	a := api.New(auth.NewAuthenticator(members, store), members,
		api.WithLogger(logging.Discard()),
		api.WithCORS("https://app.example"),
	)
	chain, err := a.Pipeline()
	require.NoError(t, err)

	var names []string
	for _, s := range chain.Stages() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{pipeline.LoggingStageName, api.CORSStageName, auth.GateStageName, api.MetricsStageName}, names)
}

func TestCORSPreflightIsLoggedAndNotGated(t *testing.T) {
	var buf bytes.Buffer
	h := newCORSRouter(t, &buf, "https://app.example")

	req := httptest.NewRequest(http.MethodOptions, "/session-info", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get(pipeline.RequestIDHeader))
	assert.Contains(t, buf.String(), `"method":"OPTIONS"`)
	assert.Contains(t, buf.String(), `"msg":"response"`)
}

func TestCORSDisabledWithoutOrigins(t *testing.T) {
	var buf bytes.Buffer
	h := newCORSRouter(t, &buf)

	req := httptest.NewRequest(http.MethodOptions, "/session-info", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
