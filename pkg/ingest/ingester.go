// Package ingest feeds memories produced by the extraction collaborator into
// the query service. The collaborator drops one JSON record per file into a
// spool directory; records are validated, stored, and moved to done/ or
// failed/. Files that hit a transient failure stay in place and are retried
// on the next pass.
//
// Producers should write to a temporary name and rename to *.json when the
// record is complete; only *.json files are picked up.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harun/synmem/internal/observability"
	"github.com/harun/synmem/internal/tracing"
	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/query"
	"github.com/rs/zerolog"
)

const (
	doneDir   = "done"
	failedDir = "failed"
)

// Storer is the part of query.Service the ingester needs.
type Storer interface {
	StoreMemory(ctx context.Context, params query.StoreParams) (*memory.Memory, error)
}

// Config configures the ingester.
type Config struct {
	Dir      string
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Summary counts the outcome of one pass over the spool directory.
type Summary struct {
	Stored   int
	Rejected int
	Deferred int
}

// Ingester processes the spool directory on demand and on file events.
type Ingester struct {
	cfg       Config
	storer    Storer
	validator *RecordValidator
	logger    zerolog.Logger

	passMu sync.Mutex

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an ingester and its spool directories.
func New(cfg Config, storer Storer) (*Ingester, error) {
	if cfg.Dir == "" {
		return nil, errors.New("ingest: spool directory is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	for _, dir := range []string{cfg.Dir, filepath.Join(cfg.Dir, doneDir), filepath.Join(cfg.Dir, failedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ingest: create %s: %w", dir, err)
		}
	}
	validator, err := NewRecordValidator()
	if err != nil {
		return nil, err
	}
	return &Ingester{
		cfg:       cfg,
		storer:    storer,
		validator: validator,
		logger:    cfg.Logger.With().Str("component", "ingest").Logger(),
	}, nil
}

// ProcessPending runs one pass over the spool directory. Passes never
// overlap.
func (in *Ingester) ProcessPending(ctx context.Context) (Summary, error) {
	in.passMu.Lock()
	defer in.passMu.Unlock()

	var sum Summary
	entries, err := os.ReadDir(in.cfg.Dir)
	if err != nil {
		return sum, fmt.Errorf("ingest: read spool: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && isRecordFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		switch in.processFile(ctx, name) {
		case outcomeStored:
			sum.Stored++
		case outcomeRejected:
			sum.Rejected++
		default:
			sum.Deferred++
		}
	}
	if len(names) > 0 {
		in.logger.Info().
			Int("stored", sum.Stored).
			Int("rejected", sum.Rejected).
			Int("deferred", sum.Deferred).
			Msg("Spool pass complete")
	}
	return sum, nil
}

type outcome int

const (
	outcomeStored outcome = iota
	outcomeRejected
	outcomeDeferred
)

func (in *Ingester) processFile(ctx context.Context, name string) outcome {
	ctx = tracing.NewRequestContext(ctx, "ingest")
	logger := tracing.LoggerFromContext(ctx, in.logger).With().Str("file", name).Logger()
	path := filepath.Join(in.cfg.Dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read spool file")
		observability.RecordIngest("error")
		return outcomeDeferred
	}

	params, err := in.validator.Parse(data)
	if err == nil {
		_, err = in.storer.StoreMemory(ctx, *params)
	}
	if err == nil {
		in.move(logger, path, doneDir, "")
		observability.RecordIngest("stored")
		return outcomeStored
	}

	if retryable(err) {
		logger.Warn().Err(err).Msg("Transient failure, record left in spool")
		observability.RecordIngest("error")
		return outcomeDeferred
	}
	logger.Warn().Err(err).Msg("Record rejected")
	in.move(logger, path, failedDir, err.Error())
	observability.RecordIngest("rejected")
	return outcomeRejected
}

func retryable(err error) bool {
	if errors.Is(err, ErrInvalidRecord) {
		return false
	}
	return query.KindOf(err).Retryable()
}

// move renames path into sub. A rejection reason is written next to it.
func (in *Ingester) move(logger zerolog.Logger, path, sub, reason string) {
	dst := filepath.Join(in.cfg.Dir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		logger.Error().Err(err).Str("dest", dst).Msg("Failed to move spool file")
		return
	}
	if reason != "" {
		if err := os.WriteFile(dst+".error", []byte(reason+"\n"), 0o644); err != nil {
			logger.Warn().Err(err).Msg("Failed to write rejection reason")
		}
	}
}

func isRecordFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".json") && !strings.HasPrefix(name, ".")
}

// Start processes pending files, then watches the spool directory until ctx
// is done or Stop is called.
func (in *Ingester) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.watcher != nil {
		return errors.New("ingest: already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingest: create watcher: %w", err)
	}
	if err := watcher.Add(in.cfg.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("ingest: watch %s: %w", in.cfg.Dir, err)
	}
	in.watcher = watcher
	in.stopCh = make(chan struct{})
	in.doneCh = make(chan struct{})

	if _, err := in.ProcessPending(ctx); err != nil {
		in.logger.Warn().Err(err).Msg("Initial spool pass failed")
	}

	go in.run(ctx, watcher, in.stopCh, in.doneCh)
	in.logger.Info().Str("dir", in.cfg.Dir).Msg("Watching spool directory")
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (in *Ingester) Stop() error {
	in.mu.Lock()
	watcher, stopCh, doneCh := in.watcher, in.stopCh, in.doneCh
	in.watcher = nil
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
	in.mu.Unlock()

	if watcher == nil {
		return nil
	}
	close(stopCh)
	err := watcher.Close()
	<-doneCh
	return err
}

func (in *Ingester) run(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isRecordFile(filepath.Base(event.Name)) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				in.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Spool change detected")
				in.schedulePass(ctx)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			in.logger.Error().Err(err).Msg("Spool watcher error")

		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// schedulePass debounces bursts of events into one pass.
func (in *Ingester) schedulePass(ctx context.Context) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.watcher == nil {
		return
	}
	if in.timer != nil {
		in.timer.Stop()
	}
	in.timer = time.AfterFunc(in.cfg.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := in.ProcessPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
			in.logger.Warn().Err(err).Msg("Spool pass failed")
		}
	})
}
