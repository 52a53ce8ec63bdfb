package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
)

// Config represents the main synmem configuration
type Config struct {
	// Data directory; relative paths below resolve against it
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	Storage     StorageConfig     `json:"storage" mapstructure:"storage"`
	Embedding   EmbeddingConfig   `json:"embedding" mapstructure:"embedding"`
	Search      SearchConfig      `json:"search" mapstructure:"search"`
	Retry       RetryConfig       `json:"retry" mapstructure:"retry"`
	Ingest      IngestConfig      `json:"ingest" mapstructure:"ingest"`
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`
	Metrics     MetricsConfig     `json:"metrics" mapstructure:"metrics"`
	Tracing     TracingConfig     `json:"tracing" mapstructure:"tracing"`
	Audit       AuditConfig       `json:"audit" mapstructure:"audit"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// StorageConfig selects and configures the storage engine
type StorageConfig struct {
	Engine      string `json:"engine" mapstructure:"engine"` // sqlite, memory
	Path        string `json:"path" mapstructure:"path"`
	BusyTimeout int    `json:"busy_timeout" mapstructure:"busy_timeout"` // milliseconds
}

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	Provider       string `json:"provider" mapstructure:"provider"` // hash, openai
	Model          string `json:"model" mapstructure:"model"`
	Dimension      int    `json:"dimension" mapstructure:"dimension"`
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	MaxInputLength int    `json:"max_input_length" mapstructure:"max_input_length"` // runes
	Timeout        int    `json:"timeout" mapstructure:"timeout"`                   // seconds
	MaxRetries     int    `json:"max_retries" mapstructure:"max_retries"`
	CacheEntries   int64  `json:"cache_entries" mapstructure:"cache_entries"` // 0 disables the cache
}

// SearchConfig tunes hybrid search fusion
type SearchConfig struct {
	FTSWeight        float64 `json:"fts_weight" mapstructure:"fts_weight"`
	VectorWeight     float64 `json:"vector_weight" mapstructure:"vector_weight"`
	Overfetch        int     `json:"overfetch" mapstructure:"overfetch"`
	MaxLimit         int     `json:"max_limit" mapstructure:"max_limit"`
	SubSearchTimeout int     `json:"sub_search_timeout" mapstructure:"sub_search_timeout"` // milliseconds, 0 = caller deadline only
	DedupThreshold   float64 `json:"dedup_threshold" mapstructure:"dedup_threshold"`
	SnippetLength    int     `json:"snippet_length" mapstructure:"snippet_length"`
}

// RetryConfig bounds retries of transient storage failures
type RetryConfig struct {
	MaxAttempts     int `json:"max_attempts" mapstructure:"max_attempts"`
	InitialInterval int `json:"initial_interval" mapstructure:"initial_interval"` // milliseconds
	MaxInterval     int `json:"max_interval" mapstructure:"max_interval"`         // milliseconds
}

// IngestConfig configures the spool directory watcher
type IngestConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Dir      string `json:"dir" mapstructure:"dir"`
	Debounce int    `json:"debounce" mapstructure:"debounce"` // milliseconds
}

// MaintenanceConfig schedules index compaction
type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"` // cron expression or @every
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
	Endpoint    string  `json:"endpoint" mapstructure:"endpoint"` // OTLP gRPC collector, empty for none
	Insecure    bool    `json:"insecure" mapstructure:"insecure"`
}

// AuditConfig holds the mutation audit log settings
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	File    string `json:"file" mapstructure:"file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      "sqlite",
			Path:        "memories.db",
			BusyTimeout: 5000,
		},
		Embedding: EmbeddingConfig{
			Provider:       "hash",
			Dimension:      384,
			MaxInputLength: 8192,
			Timeout:        30,
			MaxRetries:     2,
			CacheEntries:   10000,
		},
		Search: SearchConfig{
			FTSWeight:     0.4,
			VectorWeight:  0.6,
			Overfetch:     3,
			MaxLimit:      100,
			SnippetLength: 200,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 50,
			MaxInterval:     1000,
		},
		Ingest: IngestConfig{
			Enabled:  true,
			Dir:      "spool",
			Debounce: 500,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: "@every 6h",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9464,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "synmem",
			SampleRatio: 1,
		},
		Audit: AuditConfig{
			Enabled: true,
			File:    "audit.log",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// ResolvePaths makes relative file paths absolute under DataDir. The
// in-memory storage path ":memory:" is left alone.
func (c *Config) ResolvePaths() {
	resolve := func(p string) string {
		if p == "" || p == ":memory:" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.DataDir, p)
	}
	c.Storage.Path = resolve(c.Storage.Path)
	c.Ingest.Dir = resolve(c.Ingest.Dir)
	c.Audit.File = resolve(c.Audit.File)
	c.Logging.File = resolve(c.Logging.File)
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Embedding.APIKey != "" {
		masked.Embedding.APIKey = "***"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}
