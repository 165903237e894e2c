package pathmatch

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/", "/", true},
		{"/", "/items", false},
		{"/login", "/login", true},
		{"/login", "/login/extra", false},
		{"/css/*", "/css/site.css", true},
		{"/css/*", "/css/a/site.css", false},
		{"/css/**", "/css/site.css", true},
		{"/css/**", "/css/a/b/site.css", true},
		{"/css/**", "/js/app.js", false},
		{"/*.ico", "/favicon.ico", true},
		{"/*.ico", "/img/favicon.ico", false},
		{"/**", "/items/1", true},
		{"/members/*/edit", "/members/42/edit", true},
		{"/members/*/edit", "/members/42/43/edit", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s~%s", tt.pattern, tt.path), func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.path))
		})
	}
}

func TestMatchMalformedPattern(t *testing.T) {
	assert.False(t, Match("/css/[", "/css/["))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("/css/**"))
	require.NoError(t, Validate("/"))

	err := Validate("css/**")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPattern))

	err = Validate("/css/[")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPattern))
}

func TestNewRulesRejectsInvalidPatterns(t *testing.T) {
	_, err := NewRules([]string{"relative"}, nil)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewRules(nil, []string{"/ok", "/bad["})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	assert.Panics(t, func() { MustRules([]string{"nope"}, nil) })
}

func TestRulesApplies(t *testing.T) {
	r := MustRules([]string{"/**"}, []string{"/", "/login", "/logout", "/members/add", "/css/**", "/*.ico", "/error"})

	for _, p := range []string{"/", "/login", "/logout", "/members/add", "/css/site.css", "/css/a/b.css", "/favicon.ico", "/error"} {
		assert.False(t, r.Applies(p), "expected %s to be excluded", p)
	}
	for _, p := range []string{"/items", "/items/1", "/members/add/extra", "/session-info", "/img/favicon.ico"} {
		assert.True(t, r.Applies(p), "expected %s to be selected", p)
	}
}

func TestRulesEmptyIncludeSelectsAll(t *testing.T) {
	r := MustRules(nil, []string{"/health"})
	assert.True(t, r.Applies("/"))
	assert.True(t, r.Applies("/anything/at/all"))
	assert.False(t, r.Applies("/health"))
}

func TestRulesIncludeNarrows(t *testing.T) {
	r := MustRules([]string{"/api/**"}, []string{"/api/public/*"})
	assert.True(t, r.Applies("/api/items"))
	assert.False(t, r.Applies("/api/public/info"))
	assert.False(t, r.Applies("/items"))
}

func TestNilRules(t *testing.T) {
	var r *Rules
	assert.True(t, r.Applies("/whatever"))
}

func TestRulesCacheConsistent(t *testing.T) {
	cached := MustRules([]string{"/**"}, []string{"/css/**"}, WithCacheSize(2))
	uncached := MustRules([]string{"/**"}, []string{"/css/**"}, WithCacheSize(0))

	paths := []string{"/css/a.css", "/items", "/css/b.css", "/items", "/css/a.css", "/other"}
	for i := 0; i < 3; i++ {
		for _, p := range paths {
			assert.Equal(t, uncached.Applies(p), cached.Applies(p), p)
		}
	}
}

func TestRulesPatternsAreCopied(t *testing.T) {
	include := []string{"/**"}
	exclude := []string{"/css/**"}
	r := MustRules(include, exclude, WithCacheSize(0))
	include[0] = "/changed"
	exclude[0] = "/items"

	assert.True(t, r.Applies("/items"))
	assert.False(t, r.Applies("/css/site.css"))
}

func TestRulesConcurrent(t *testing.T) {
	r := MustRules([]string{"/**"}, []string{"/public/**"}, WithCacheSize(8))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := fmt.Sprintf("/items/%d", i%16)
			if !r.Applies(p) {
				t.Errorf("expected %s to be selected", p)
			}
			if r.Applies(fmt.Sprintf("/public/%d", i)) {
				t.Errorf("expected public path to be excluded")
			}
		}(i)
	}
	wg.Wait()
}
