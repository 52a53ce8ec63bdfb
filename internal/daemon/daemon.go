// Package daemon runs the memory service as a long-lived process: the query
// service, the ingest spool watcher, scheduled maintenance and the metrics
// endpoint, with a PID file for the CLI.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/synmem/internal/config"
	"github.com/harun/synmem/internal/logger"
	"github.com/harun/synmem/internal/observability"
	"github.com/harun/synmem/internal/tracing"
	"github.com/harun/synmem/pkg/ingest"
	"github.com/harun/synmem/pkg/query"
	"github.com/rs/zerolog"
)

// Version is the release reported by the CLI and the tracer resource.
const Version = "0.1.0"

// Daemon represents the synmem daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	components  *Components
	ingester    *ingest.Ingester
	maintenance *Maintenance
	metrics     *MetricsServer
	lifecycle   *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
	auditEnabled   bool
}

// Status is a snapshot of the daemon state
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
}

// New creates a new daemon instance. cfg must have its paths resolved.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config:    cfg,
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
		lifecycle: NewLifecycleManager(cfg.DataDir, log.Component("lifecycle")),
	}

	if cfg.Tracing.Enabled {
		if err := tracing.Init(ctx, tracing.Options{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: Version,
			SampleRatio:    cfg.Tracing.SampleRatio,
			Endpoint:       cfg.Tracing.Endpoint,
			Insecure:       cfg.Tracing.Insecure,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	if cfg.Audit.Enabled {
		if err := observability.InitAuditLogger(cfg.Audit.File); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize audit logger, audit events are discarded")
		} else {
			d.auditEnabled = true
			log.Info().Str("path", cfg.Audit.File).Msg("Audit logger initialized")
		}
	}

	if err := d.initializeModules(); err != nil {
		d.release()
		return nil, err
	}

	return d, nil
}

// initializeModules builds the memory stack and the services around it
func (d *Daemon) initializeModules() error {
	zl := d.logger.GetZerolog()

	components, err := Build(d.ctx, d.config, zl)
	if err != nil {
		return err
	}
	d.components = components

	if d.config.Ingest.Enabled {
		ingester, err := ingest.New(ingest.Config{
			Dir:      d.config.Ingest.Dir,
			Debounce: time.Duration(d.config.Ingest.Debounce) * time.Millisecond,
			Logger:   zl,
		}, components.Service)
		if err != nil {
			return fmt.Errorf("failed to create ingester: %w", err)
		}
		d.ingester = ingester
		d.logger.Info().Str("dir", d.config.Ingest.Dir).Msg("Ingester initialized")
	}

	if d.config.Maintenance.Enabled {
		maintenance, err := NewMaintenance(d.config.Maintenance.Schedule, components.Store, d.ingester, zl)
		if err != nil {
			return err
		}
		d.maintenance = maintenance
		d.logger.Info().Str("schedule", d.config.Maintenance.Schedule).Msg("Maintenance scheduled")
	}

	if d.config.Metrics.Enabled {
		d.metrics = NewMetricsServer(d.config.Metrics.Host, d.config.Metrics.Port, components.Service.Stats, zl)
	}

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	ctx := tracing.NewRequestContext(d.ctx, "daemon")
	logger := tracing.LoggerFromContext(ctx, d.logger.GetZerolog())
	logger.Info().Str("version", Version).Msg("Starting synmem daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if _, err := d.components.Service.Stats(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to read memory stats")
	}

	if d.metrics != nil {
		if err := d.metrics.Start(); err != nil {
			d.setStopped()
			_ = d.lifecycle.Stop()
			return err
		}
	}

	if d.ingester != nil {
		if err := d.ingester.Start(d.ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to start ingest watcher")
		} else {
			logger.Info().Msg("Ingest watcher started")
		}
	}

	if d.maintenance != nil {
		d.maintenance.Start()
		logger.Info().Msg("Maintenance scheduler started")
	}

	logger.Info().Msg("Daemon started successfully")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	ctx := tracing.NewRequestContext(context.Background(), "daemon")
	logger := tracing.LoggerFromContext(ctx, d.logger.GetZerolog())
	logger.Info().Msg("Stopping synmem daemon")

	if d.maintenance != nil {
		d.maintenance.Stop()
		logger.Info().Msg("Maintenance scheduler stopped")
	}

	if d.ingester != nil {
		if err := d.ingester.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop ingest watcher")
		}
	}

	if d.metrics != nil {
		if err := d.metrics.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.release()

	logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// release closes the store and shuts down tracing and audit logging
func (d *Daemon) release() {
	d.cancel()

	if d.components != nil {
		if err := d.components.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to close memory store")
		}
		d.components = nil
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if d.auditEnabled {
		audit := observability.GetAuditLogger()
		observability.SetAuditLogger(observability.NewAuditLogger(zerolog.Nop()))
		if err := audit.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to close audit logger")
		}
		d.auditEnabled = false
	}
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-d.ctx.Done():
		return
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetService returns the memory query service
func (d *Daemon) GetService() *query.Service {
	if d.components == nil {
		return nil
	}
	return d.components.Service
}

// GetIngester returns the spool ingester, nil when disabled
func (d *Daemon) GetIngester() *ingest.Ingester {
	return d.ingester
}

// GetMaintenance returns the maintenance scheduler, nil when disabled
func (d *Daemon) GetMaintenance() *Maintenance {
	return d.maintenance
}

// GetMetricsServer returns the metrics server, nil when disabled
func (d *Daemon) GetMetricsServer() *MetricsServer {
	return d.metrics
}

// GetLifecycle returns the lifecycle manager
func (d *Daemon) GetLifecycle() *LifecycleManager {
	return d.lifecycle
}
