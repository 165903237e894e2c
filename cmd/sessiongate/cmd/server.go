package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jmcleod/sessiongate/api"
	"github.com/jmcleod/sessiongate/auth"
	"github.com/jmcleod/sessiongate/config"
	"github.com/jmcleod/sessiongate/member"
	"github.com/jmcleod/sessiongate/session"
	"github.com/jmcleod/sessiongate/storage"
)

var (
	flagListen      string
	flagTLSCert     string
	flagTLSKey      string
	flagIdleTimeout time.Duration
	flagSeed        bool
)

// testMember is the member seeded with --seed-test-member.
var testMember = member.RegisterRequest{LoginID: "test", Name: "tester", Password: "test!"}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the session authentication server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		repo, closeRepo, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRepo()

		srv, err := newServer(ctx, cfg, repo, logger)
		if err != nil {
			return err
		}
		defer srv.close()

		server := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           srv.handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		}
		if cfg.TLSCert != "" {
			server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if cfg.TLSCert != "" {
				err = server.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		logger.Info("server started",
			"addr", cfg.ListenAddr,
			"storage", cfg.Backend,
			"tls", cfg.TLSCert != "",
			"idle_timeout", cfg.IdleTimeout.String(),
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Address to listen on (env: SESSIONGATE_LISTEN_ADDR, default :8080)")
	serverCmd.Flags().StringVar(&flagTLSCert, "tls-cert", "", "Path to TLS certificate file (env: SESSIONGATE_TLS_CERT)")
	serverCmd.Flags().StringVar(&flagTLSKey, "tls-key", "", "Path to TLS key file (env: SESSIONGATE_TLS_KEY)")
	serverCmd.Flags().DurationVar(&flagIdleTimeout, "idle-timeout", 0, "Expire sessions idle for this long; 0 disables (env: SESSIONGATE_IDLE_TIMEOUT)")
	serverCmd.Flags().BoolVar(&flagSeed, "seed-test-member", false, "Register the test member test/test! on startup (env: SESSIONGATE_SEED_TEST_MEMBER)")
}

// server is the assembled HTTP stack and the resources it owns.
type server struct {
	handler http.Handler
	api     *api.API
	store   *session.MemoryStore[member.Principal]
}

func newServer(ctx context.Context, c config.Config, repo storage.Repository, logger *slog.Logger) (*server, error) {
	proxies, err := c.ParsedTrustedProxies()
	if err != nil {
		return nil, err
	}

	members := member.NewService(member.NewRepository(repo), member.WithServiceLogger(logger))
	if c.SeedTestMember {
		created, err := members.Seed(ctx, testMember)
		if err != nil {
			return nil, fmt.Errorf("failed to seed test member: %w", err)
		}
		if created {
			logger.Info("seeded test member", "login_id", testMember.LoginID)
		}
	}

	store := session.New[member.Principal](
		session.WithIdleTimeout(c.IdleTimeout),
		session.WithSweepInterval(c.SweepInterval),
		session.WithLogger(logger),
	)
	authn := auth.NewAuthenticator(members, store,
		auth.WithCookieName(c.CookieName),
		auth.WithRememberFor(c.RememberFor),
		auth.WithTrustedProxies(proxies),
		auth.WithLogger(logger),
	)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := api.New(authn, members,
		api.WithLogger(logger),
		api.WithAuditRepository(repo),
		api.WithAuditWebhook(c.AuditWebhookURL, c.AuditWebhookHeader),
		api.WithTrustedProxies(proxies),
		api.WithIdleTimeout(c.IdleTimeout),
		api.WithCORS(c.CORSOrigins...),
		api.WithRegistry(registry),
		api.WithGateOptions(auth.WithExtraWhitelist(c.ExtraWhitelist...)),
		api.WithAlertFunc(func(e api.AlertEvent) {
			logger.Warn("security alert",
				"type", string(e.Type),
				"count", e.Count,
				"threshold", e.Threshold,
			)
		}),
	)
	router, err := a.Router()
	if err != nil {
		a.Close()
		store.Close()
		return nil, err
	}

	return &server{
		handler: middleware.Recoverer(router),
		api:     a,
		store:   store,
	}, nil
}

func (s *server) close() {
	s.api.Close()
	s.store.Close()
}
