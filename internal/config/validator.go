package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

var (
	validEngines   = []string{"sqlite", "memory"}
	validProviders = []string{"hash", "openai"}
	validLevels    = []string{"debug", "info", "warn", "error"}
)

// Validator validates configuration values
type Validator struct {
	parser cron.Parser
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func oneOf(kind, value string, valid []string) error {
	if slices.Contains(valid, value) {
		return nil
	}
	return fmt.Errorf("invalid %s: %s (must be one of: %s)", kind, value, strings.Join(valid, ", "))
}

// ValidateEngine validates the storage engine name
func (v *Validator) ValidateEngine(engine string) error {
	return oneOf("storage engine", engine, validEngines)
}

// ValidateProvider validates the embedding provider name
func (v *Validator) ValidateProvider(provider string) error {
	return oneOf("embedding provider", provider, validProviders)
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	return oneOf("log level", level, validLevels)
}

// ValidateAPIKey validates an OpenAI-compatible API key. Keys for custom
// base URLs are not checked for a prefix.
func (v *Validator) ValidateAPIKey(key, baseURL string) error {
	if key == "" {
		return fmt.Errorf("openai API key cannot be empty")
	}
	if baseURL == "" && !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
	}
	return nil
}

// ValidateSchedule validates a cron expression or descriptor such as "@every 6h"
func (v *Validator) ValidateSchedule(expr string) error {
	if _, err := v.parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", expr, err)
	}
	return nil
}

// ValidateWeights validates the fusion weights
func (v *Validator) ValidateWeights(fts, vector float64) error {
	if fts < 0 || vector < 0 {
		return fmt.Errorf("fusion weights must not be negative, got fts=%g vector=%g", fts, vector)
	}
	if fts+vector == 0 {
		return fmt.Errorf("at least one fusion weight must be positive")
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(v.ValidateEngine(cfg.Storage.Engine))
	if cfg.Storage.Engine == "sqlite" && cfg.Storage.Path == "" {
		add(fmt.Errorf("storage path is required for the sqlite engine"))
	}
	if cfg.Storage.BusyTimeout < 0 {
		add(fmt.Errorf("storage busy timeout must not be negative"))
	}

	add(v.ValidateProvider(cfg.Embedding.Provider))
	if cfg.Embedding.Dimension <= 0 {
		add(fmt.Errorf("embedding dimension must be positive, got %d", cfg.Embedding.Dimension))
	}
	if cfg.Embedding.MaxInputLength <= 0 {
		add(fmt.Errorf("embedding max input length must be positive, got %d", cfg.Embedding.MaxInputLength))
	}
	if cfg.Embedding.Provider == "openai" {
		add(v.ValidateAPIKey(cfg.Embedding.APIKey, cfg.Embedding.BaseURL))
		if cfg.Embedding.Model == "" {
			add(fmt.Errorf("embedding model is required for the openai provider"))
		}
	}

	add(v.ValidateWeights(cfg.Search.FTSWeight, cfg.Search.VectorWeight))
	if cfg.Search.Overfetch < 2 {
		add(fmt.Errorf("search overfetch must be at least 2, got %d", cfg.Search.Overfetch))
	}
	if cfg.Search.MaxLimit <= 0 {
		add(fmt.Errorf("search max limit must be positive, got %d", cfg.Search.MaxLimit))
	}
	if cfg.Search.SubSearchTimeout < 0 {
		add(fmt.Errorf("search sub-search timeout must not be negative"))
	}
	if cfg.Search.DedupThreshold < 0 || cfg.Search.DedupThreshold > 1 {
		add(fmt.Errorf("search dedup threshold must be within [0,1], got %g", cfg.Search.DedupThreshold))
	}

	if cfg.Retry.MaxAttempts < 1 {
		add(fmt.Errorf("retry max attempts must be at least 1, got %d", cfg.Retry.MaxAttempts))
	}

	if cfg.Ingest.Enabled && cfg.Ingest.Dir == "" {
		add(fmt.Errorf("ingest directory is required when ingest is enabled"))
	}
	if cfg.Maintenance.Enabled {
		add(v.ValidateSchedule(cfg.Maintenance.Schedule))
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		add(fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port))
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		add(fmt.Errorf("tracing sample ratio must be within [0,1], got %g", cfg.Tracing.SampleRatio))
	}

	add(v.ValidateLogLevel(cfg.Logging.Level))

	return errs
}
