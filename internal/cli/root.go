package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"reroute/internal/reroute"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the reroute command tree. Running the root command
// without a subcommand serves.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "reroute",
		Short: "Path redirect layer for the CMS site.",
		Long: `reroute sits in front of the CMS origin, answers requests whose path
matches an admin-configured redirect rule, and proxies everything else.

Rules are read from the document store and cached for 60 seconds; a stale
cache is refreshed in the background while requests keep being answered
from the rules already in memory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", getenvDefault("REROUTE_CONFIG", "/reroute.yaml"), "path to reroute.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newRulesCmd(opts))
	return cmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing file is only an error when
// required is set; otherwise defaults are used.
func (o *rootOptions) loadConfig(required bool) (reroute.Config, error) {
	cfg, err := reroute.LoadConfig(o.configPath)
	if err == nil {
		return cfg, nil
	}
	if !required && os.IsNotExist(err) {
		return reroute.DefaultConfig(), nil
	}
	return reroute.Config{}, fmt.Errorf("load config: %w", err)
}

func (o *rootOptions) logger(cfg reroute.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	return newLogger(level)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Sampling = nil
	return zc.Build()
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
