package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessiongate/pathmatch"
)

func recordingStage(name string, order int, trace *[]string) Stage {
	return Stage{
		Name:  name,
		Order: order,
		Middleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				*trace = append(*trace, name)
				next.ServeHTTP(w, r)
			})
		},
	}
}

func TestChainRunsStagesInOrder(t *testing.T) {
	var trace []string
	chain, err := New(
		recordingStage("gate", 2, &trace),
		recordingStage("logging", 1, &trace),
		recordingStage("audit", 3, &trace),
	)
	require.NoError(t, err)

	names := []string{}
	for _, s := range chain.Stages() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"logging", "gate", "audit"}, names)

	h := chain.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = append(trace, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items", nil))
	assert.Equal(t, []string{"logging", "gate", "audit", "handler"}, trace)
}

func TestChainValidation(t *testing.T) {
	noop := func(next http.Handler) http.Handler { return next }

	_, err := New(Stage{Name: "", Order: 1, Middleware: noop})
	assert.Error(t, err)

	_, err = New(Stage{Name: "a", Order: 1})
	assert.Error(t, err)

	_, err = New(Stage{Name: "a", Order: 1, Middleware: noop}, Stage{Name: "a", Order: 2, Middleware: noop})
	assert.ErrorContains(t, err, "duplicate")

	_, err = New(Stage{Name: "a", Order: 1, Middleware: noop}, Stage{Name: "b", Order: 1, Middleware: noop})
	assert.ErrorContains(t, err, "share order")

	chain, err := New()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	chain.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestStageRulesSkipUnselectedPaths(t *testing.T) {
	var trace []string
	gated := recordingStage("gate", 2, &trace)
	gated.Rules = pathmatch.MustRules([]string{"/**"}, []string{"/css/**", "/login"})

	chain, err := New(recordingStage("logging", 1, &trace), gated)
	require.NoError(t, err)
	h := chain.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, tc := range []struct {
		path string
		want []string
	}{
		{"/css/site.css", []string{"logging"}},
		{"/login", []string{"logging"}},
		{"/items", []string{"logging", "gate"}},
	} {
		trace = nil
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.want, trace, tc.path)
	}
}

func TestStageCanShortCircuit(t *testing.T) {
	reject := Stage{
		Name:  "reject",
		Order: LoggingOrder + 10,
		Middleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/login", http.StatusFound)
			})
		},
	}
	chain, err := New(Logging(nil), reject)
	require.NoError(t, err)

	called := false
	rec := httptest.NewRecorder()
	chain.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}
