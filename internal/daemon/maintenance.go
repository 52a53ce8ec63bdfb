package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/synmem/internal/observability"
	"github.com/harun/synmem/internal/tracing"
	"github.com/harun/synmem/pkg/ingest"
	"github.com/harun/synmem/pkg/memory"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// maintenanceTimeout bounds one scheduled run.
const maintenanceTimeout = 10 * time.Minute

// Maintenance periodically sweeps the ingest spool, compacts the indices and
// refreshes the record-count gauge.
type Maintenance struct {
	cron     *cron.Cron
	store    memory.Store
	ingester *ingest.Ingester
	logger   zerolog.Logger
}

// NewMaintenance schedules the maintenance run. ingester may be nil.
func NewMaintenance(schedule string, st memory.Store, ingester *ingest.Ingester, logger zerolog.Logger) (*Maintenance, error) {
	m := &Maintenance{
		store:    st,
		ingester: ingester,
		logger:   logger.With().Str("component", "maintenance").Logger(),
	}

	cronLog := &cronLoggerAdapter{logger: m.logger}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	m.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if _, err := m.cron.AddFunc(schedule, m.scheduledRun); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}
	return m, nil
}

// Start starts the scheduler in its own goroutine.
func (m *Maintenance) Start() {
	m.cron.Start()
}

// Stop stops the scheduler and waits for a running job to finish.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
}

func (m *Maintenance) scheduledRun() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()
	ctx = tracing.NewRequestContext(ctx, "maintenance")

	if err := m.RunOnce(ctx); err != nil {
		logger := tracing.LoggerFromContext(ctx, m.logger)
		logger.Error().Err(err).Msg("Maintenance run failed")
	}
}

// RunOnce performs one maintenance pass. Every step runs even if an earlier
// one fails.
func (m *Maintenance) RunOnce(ctx context.Context) error {
	logger := tracing.LoggerFromContext(ctx, m.logger)
	start := time.Now()
	var errs []error

	if m.ingester != nil {
		if _, err := m.ingester.ProcessPending(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ingest sweep: %w", err))
		}
	}

	if err := m.store.Compact(ctx); err != nil {
		errs = append(errs, fmt.Errorf("compact: %w", err))
	}

	stats, err := m.store.Stats(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("stats: %w", err))
	} else {
		observability.SetMemoryEntries(stats.Count)
	}

	err = errors.Join(errs...)
	observability.RecordMaintenance(err == nil)
	logger.Debug().
		Dur("duration", time.Since(start)).
		Int("entries", stats.Count).
		Bool("success", err == nil).
		Msg("Maintenance run finished")
	return err
}

// cronLoggerAdapter routes robfig/cron logging to zerolog.
type cronLoggerAdapter struct {
	logger zerolog.Logger
}

func (l *cronLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Debug(), msg, keysAndValues...)
}

func (l *cronLoggerAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log(l.logger.Error().Err(err), msg, keysAndValues...)
}

func (l *cronLoggerAdapter) log(ev *zerolog.Event, msg string, keysAndValues ...interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, keysAndValues[i+1])
	}
	ev.Msg(msg)
}
