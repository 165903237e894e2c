package api

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(policy lockoutPolicy) (*lockoutLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := newLockoutLimiter(policy)
	rl.now = clock.now
	return rl, clock
}

func TestLockoutLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl, _ := newTestLimiter(accountLockoutPolicy)

	for i := 0; i < accountLockoutPolicy.maxFailures-1; i++ {
		rl.recordFailure("test")
		blocked, _ := rl.check("test")
		assert.False(t, blocked, "should not block before reaching maxFailures")
	}
}

func TestLockoutLimiter_BlocksAfterThreshold(t *testing.T) {
	rl, _ := newTestLimiter(accountLockoutPolicy)

	for i := 0; i < accountLockoutPolicy.maxFailures; i++ {
		rl.recordFailure("test")
	}

	blocked, retryAfter := rl.check("test")
	require.True(t, blocked)
	assert.Equal(t, accountLockoutPolicy.baseLockout, retryAfter)
}

func TestLockoutLimiter_ExponentialBackoff(t *testing.T) {
	rl, _ := newTestLimiter(accountLockoutPolicy)

	for i := 0; i < accountLockoutPolicy.maxFailures; i++ {
		rl.recordFailure("test")
	}
	_, first := rl.check("test")

	rl.recordFailure("test")
	_, second := rl.check("test")
	assert.Equal(t, 2*first, second)
}

func TestLockoutLimiter_MaxLockoutCap(t *testing.T) {
	rl, _ := newTestLimiter(ipLockoutPolicy)

	for i := 0; i < ipLockoutPolicy.maxFailures+20; i++ {
		rl.recordFailure("192.168.1.1")
	}

	_, retryAfter := rl.check("192.168.1.1")
	assert.Equal(t, ipLockoutPolicy.maxLockout, retryAfter)
}

func TestLockoutLimiter_LockoutElapses(t *testing.T) {
	rl, clock := newTestLimiter(accountLockoutPolicy)

	for i := 0; i < accountLockoutPolicy.maxFailures; i++ {
		rl.recordFailure("test")
	}
	blocked, _ := rl.check("test")
	require.True(t, blocked)

	clock.advance(accountLockoutPolicy.baseLockout + time.Second)
	blocked, _ = rl.check("test")
	assert.False(t, blocked)
}

func TestLockoutLimiter_SuccessResetsCounter(t *testing.T) {
	rl, _ := newTestLimiter(accountLockoutPolicy)

	for i := 0; i < accountLockoutPolicy.maxFailures; i++ {
		rl.recordFailure("test")
	}
	blocked, _ := rl.check("test")
	require.True(t, blocked)

	rl.recordSuccess("test")

	blocked, _ = rl.check("test")
	assert.False(t, blocked, "should not block after successful login")
	assert.Zero(t, rl.size())
}

func TestLockoutLimiter_IsolatesKeys(t *testing.T) {
	rl, _ := newTestLimiter(accountLockoutPolicy)

	for i := 0; i < accountLockoutPolicy.maxFailures; i++ {
		rl.recordFailure("test")
	}
	blocked, _ := rl.check("test")
	require.True(t, blocked)

	blocked, _ = rl.check("other")
	assert.False(t, blocked, "lockout for one key should not affect another")
}

func TestLockoutLimiter_ExpiredRecordDropped(t *testing.T) {
	rl, clock := newTestLimiter(accountLockoutPolicy)

	rl.recordFailure("test")
	require.Equal(t, 1, rl.size())

	clock.advance(accountLockoutPolicy.expiry + time.Minute)
	blocked, _ := rl.check("test")
	assert.False(t, blocked)
	assert.Zero(t, rl.size())
}

func TestLockoutLimiter_SweepRemovesExpired(t *testing.T) {
	rl, clock := newTestLimiter(accountLockoutPolicy)

	rl.recordFailure("a")
	rl.recordFailure("b")
	require.Equal(t, 2, rl.size())

	clock.advance(accountLockoutPolicy.expiry + time.Minute)
	rl.recordFailure("c")

	assert.Equal(t, 1, rl.size(), "stale records are swept on the next failure")
}

func TestWriteRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimited(rec, 1500*time.Millisecond, "too many attempts")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many attempts"}`, rec.Body.String())

	assert.Equal(t, "1", retryAfterString(0))
	assert.Equal(t, "90", retryAfterString(90*time.Second))
}

func TestExtractClientIPWithProxies(t *testing.T) {
	trustedCIDR := netip.MustParsePrefix("10.0.0.0/8")

	tests := []struct {
		name           string
		remoteAddr     string
		headers        map[string]string
		trustedProxies []netip.Prefix
		want           string
	}{
		{
			name:       "remote ipv4",
			remoteAddr: "192.168.1.1:12345",
			want:       "192.168.1.1",
		},
		{
			name:       "remote ipv6",
			remoteAddr: "[::1]:8080",
			want:       "::1",
		},
		{
			name:       "ipv4-mapped remote is unmapped",
			remoteAddr: "[::ffff:192.0.2.1]:80",
			want:       "192.0.2.1",
		},
		{
			name:       "empty when nothing parseable",
			remoteAddr: "not-a-hostport",
			want:       "",
		},
		{
			name:           "no trusted proxies ignores XFF",
			remoteAddr:     "192.168.1.1:80",
			headers:        map[string]string{"X-Forwarded-For": "198.51.100.25"},
			trustedProxies: nil,
			want:           "192.168.1.1",
		},
		{
			name:           "trusted proxy honors XFF",
			remoteAddr:     "10.0.0.1:80",
			headers:        map[string]string{"X-Forwarded-For": "198.51.100.25"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "198.51.100.25",
		},
		{
			name:           "xff skips invalid entries",
			remoteAddr:     "10.0.0.1:80",
			headers:        map[string]string{"X-Forwarded-For": "unknown, not-an-ip, 203.0.113.7"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "203.0.113.7",
		},
		{
			name:           "xff multi hop returns original client",
			remoteAddr:     "10.0.0.5:80",
			headers:        map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.3, 10.0.0.4"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "203.0.113.50",
		},
		{
			name:           "forwarded fallback",
			remoteAddr:     "10.0.0.1:80",
			headers:        map[string]string{"Forwarded": `for=198.51.100.1;proto=https;by=203.0.113.43`},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "198.51.100.1",
		},
		{
			name:           "forwarded quoted ipv6",
			remoteAddr:     "10.0.0.1:80",
			headers:        map[string]string{"Forwarded": `for="[2001:db8::42]:1234"`},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "2001:db8::42",
		},
		{
			name:           "x-real-ip fallback",
			remoteAddr:     "10.0.0.1:80",
			headers:        map[string]string{"X-Real-IP": "203.0.113.11"},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "203.0.113.11",
		},
		{
			name:       "untrusted peer ignores every header",
			remoteAddr: "203.0.113.99:12345",
			headers: map[string]string{
				"X-Forwarded-For": "10.0.0.1",
				"Forwarded":       "for=10.0.0.2",
				"X-Real-IP":       "10.0.0.3",
			},
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "203.0.113.99",
		},
		{
			name:           "trusted proxy with no headers falls back to remote",
			remoteAddr:     "10.0.0.1:80",
			trustedProxies: []netip.Prefix{trustedCIDR},
			want:           "10.0.0.1",
		},
		{
			name:           "narrow prefix excludes neighbour",
			remoteAddr:     "10.0.0.2:80",
			headers:        map[string]string{"X-Forwarded-For": "198.51.100.25"},
			trustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.1/32")},
			want:           "10.0.0.2",
		},
		{
			name:           "trusted ipv6 proxy honors XFF",
			remoteAddr:     "[fd00::1]:80",
			headers:        map[string]string{"X-Forwarded-For": "2001:db8::42"},
			trustedProxies: []netip.Prefix{netip.MustParsePrefix("fd00::/8")},
			want:           "2001:db8::42",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: make(http.Header)}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIPWithProxies(r, tt.trustedProxies))
		})
	}
}

func TestAPIExtractClientIP(t *testing.T) {
	a := New(nil, nil, WithTrustedProxies([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}))

	r := &http.Request{
		RemoteAddr: "10.0.0.1:80",
		Header:     http.Header{"X-Forwarded-For": []string{"198.51.100.25"}},
	}
	assert.Equal(t, "198.51.100.25", a.extractClientIP(r))

	r.RemoteAddr = "192.168.1.1:80"
	assert.Equal(t, "192.168.1.1", a.extractClientIP(r))
}
