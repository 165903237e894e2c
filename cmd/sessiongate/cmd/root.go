package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessiongate/config"
	"github.com/jmcleod/sessiongate/internal/logging"
)

// Version is set at build time.
var Version = "dev"

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sessiongate",
	Short: "SessionGate is a cookie session authentication server",
	Long: `SessionGate authenticates members with a login id and password, keeps
their sessions in memory and gates every request outside a whitelist.
Configuration is read from SESSIONGATE_* environment variables; flags
override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		applyFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger = logging.New(cfg.LogLevel, os.Stderr)
		return nil
	},
}

var (
	flagLogLevel    string
	flagStorage     string
	flagDataDir     string
	flagDatabaseURL string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (env: SESSIONGATE_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagStorage, "storage", "", "Storage backend: memory, bbolt, postgres (env: SESSIONGATE_STORAGE)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Directory for bbolt data (env: SESSIONGATE_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "db-url", "", "PostgreSQL connection URL (env: SESSIONGATE_DATABASE_URL)")
}

// applyFlags overrides the environment with explicitly set flags.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("storage") {
		cfg.Backend = flagStorage
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = flagDataDir
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = flagDatabaseURL
	}
	if flags.Changed("listen") {
		cfg.ListenAddr = flagListen
	}
	if flags.Changed("tls-cert") {
		cfg.TLSCert = flagTLSCert
	}
	if flags.Changed("tls-key") {
		cfg.TLSKey = flagTLSKey
	}
	if flags.Changed("idle-timeout") {
		cfg.IdleTimeout = flagIdleTimeout
	}
	if flags.Changed("seed-test-member") {
		cfg.SeedTestMember = flagSeed
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
