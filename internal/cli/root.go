// Package cli implements the synmem command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/harun/synmem/internal/config"
	"github.com/harun/synmem/internal/daemon"
	"github.com/harun/synmem/internal/logger"
	"github.com/harun/synmem/internal/tracing"
	"github.com/spf13/cobra"
)

// oneShotLogLevel is used by commands other than start when --log-level is
// not given, so stderr stays quiet.
const oneShotLogLevel = "warn"

// rootOptions holds the global flags shared by every subcommand
type rootOptions struct {
	configFile string
	logLevel   string
	jsonOutput bool
}

// NewRootCmd builds the command tree. Each call returns fresh commands and
// flag state.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "synmem",
		Short: "synmem - synthetic memory for browser agents",
		Long: `synmem is a synthetic memory for browser agents. It stores content
extracted from web pages and retrieves it with hybrid full-text and
semantic search. It runs as a daemon that watches a spool directory, or as
one-shot commands against the same store.`,
		Version:       daemon.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is $HOME/.synmem/synmem.json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print machine-readable JSON")

	cmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	cmd.AddCommand(
		newStoreCmd(opts),
		newGetCmd(opts),
		newDeleteCmd(opts),
		newSearchCmd(opts),
		newRecentCmd(opts),
		newStatsCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
		newConfigCmd(opts),
	)

	return cmd
}

// Execute runs the command line. Called once by main.
func Execute() error {
	return NewRootCmd().Execute()
}

// GetRootCmd returns a fresh root command for testing
func GetRootCmd() *cobra.Command {
	return NewRootCmd()
}

// GetVersion returns the current version
func GetVersion() string {
	return daemon.Version
}

// loadConfig loads and validates the configuration
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger creates the process logger. One-shot commands log to stderr
// only and default to warn; the daemon also writes the configured log file.
func (o *rootOptions) newLogger(cfg *config.Config, daemonMode bool) (*logger.Logger, error) {
	logCfg := logger.Config{
		Level:     cfg.Logging.Level,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
	}
	if daemonMode {
		logCfg.File = cfg.Logging.File
		logCfg.MaxSize = cfg.Logging.MaxSize
		logCfg.MaxAge = cfg.Logging.MaxAge
		logCfg.Compress = cfg.Logging.Compress
	} else if o.logLevel == "" {
		logCfg.Level = oneShotLogLevel
	}
	return logger.New(logCfg)
}

// session is an opened memory stack for a one-shot command
type session struct {
	*daemon.Components
	log *logger.Logger
}

func (s *session) Close() {
	s.Components.Close()
	s.log.Close()
}

// openSession loads the configuration and opens the memory stack
func (o *rootOptions) openSession(ctx context.Context) (context.Context, *session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return ctx, nil, err
	}
	log, err := o.newLogger(cfg, false)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	components, err := daemon.Build(ctx, cfg, log.GetZerolog())
	if err != nil {
		log.Close()
		return ctx, nil, err
	}
	return tracing.NewRequestContext(ctx, "cli"), &session{Components: components, log: log}, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
