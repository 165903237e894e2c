// Package config loads the sessiongate server configuration from
// SESSIONGATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/jmcleod/sessiongate/auth"
	"github.com/jmcleod/sessiongate/pathmatch"
)

// Storage backends for members and the audit trail.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bbolt"
	BackendPostgres = "postgres"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the server configuration.
type Config struct {
	ListenAddr string
	LogLevel   string

	CookieName    string
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	RememberFor   time.Duration

	// ExtraWhitelist adds patterns to the gate's default whitelist.
	ExtraWhitelist []string

	Backend     string
	DataDir     string
	DatabaseURL string

	CORSOrigins    []string
	TLSCert        string
	TLSKey         string
	TrustedProxies []string

	SeedTestMember bool

	AuditWebhookURL    string
	AuditWebhookHeader string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		LogLevel:      "info",
		CookieName:    auth.DefaultCookieName,
		SweepInterval: time.Minute,
		RememberFor:   auth.DefaultRememberFor,
		Backend:       BackendMemory,
		DataDir:       "./data",
	}
}

// Load reads the configuration from the environment on top of Default.
func Load() Config {
	def := Default()
	return Config{
		ListenAddr:         envString("SESSIONGATE_LISTEN_ADDR", def.ListenAddr),
		LogLevel:           envString("SESSIONGATE_LOG_LEVEL", def.LogLevel),
		CookieName:         envString("SESSIONGATE_COOKIE_NAME", def.CookieName),
		IdleTimeout:        envDuration("SESSIONGATE_IDLE_TIMEOUT", def.IdleTimeout),
		SweepInterval:      envDuration("SESSIONGATE_SWEEP_INTERVAL", def.SweepInterval),
		RememberFor:        envDuration("SESSIONGATE_REMEMBER_FOR", def.RememberFor),
		ExtraWhitelist:     envList("SESSIONGATE_WHITELIST"),
		Backend:            strings.ToLower(envString("SESSIONGATE_STORAGE", def.Backend)),
		DataDir:            envString("SESSIONGATE_DATA_DIR", def.DataDir),
		DatabaseURL:        envString("SESSIONGATE_DATABASE_URL", def.DatabaseURL),
		CORSOrigins:        envList("SESSIONGATE_CORS_ORIGINS"),
		TLSCert:            envString("SESSIONGATE_TLS_CERT", def.TLSCert),
		TLSKey:             envString("SESSIONGATE_TLS_KEY", def.TLSKey),
		TrustedProxies:     envList("SESSIONGATE_TRUSTED_PROXIES"),
		SeedTestMember:     envBool("SESSIONGATE_SEED_TEST_MEMBER", def.SeedTestMember),
		AuditWebhookURL:    envString("SESSIONGATE_AUDIT_WEBHOOK_URL", def.AuditWebhookURL),
		AuditWebhookHeader: envString("SESSIONGATE_AUDIT_WEBHOOK_HEADER", def.AuditWebhookHeader),
	}
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address is required", ErrInvalid)
	}
	if c.CookieName == "" || strings.ContainsAny(c.CookieName, " ;,=\t") {
		return fmt.Errorf("%w: cookie name %q", ErrInvalid, c.CookieName)
	}
	if c.IdleTimeout < 0 || c.RememberFor < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if c.IdleTimeout > 0 && c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep interval is required with an idle timeout", ErrInvalid)
	}
	switch c.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.DataDir == "" {
			return fmt.Errorf("%w: %s storage needs a data dir", ErrInvalid, c.Backend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: %s storage needs a database url", ErrInvalid, c.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalid, c.Backend)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("%w: tls cert and key must be set together", ErrInvalid)
	}
	for _, p := range c.ExtraWhitelist {
		if err := pathmatch.Validate(p); err != nil {
			return fmt.Errorf("%w: whitelist: %w", ErrInvalid, err)
		}
	}
	if _, err := c.ParsedTrustedProxies(); err != nil {
		return err
	}
	return nil
}

// ParsedTrustedProxies parses TrustedProxies. Bare addresses are treated
// as single-host prefixes.
func (c Config) ParsedTrustedProxies() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: trusted proxy %q", ErrInvalid, raw)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: trusted proxy %q", ErrInvalid, raw)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}
