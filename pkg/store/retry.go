// Package store holds engine-independent decorators for memory.Store.
// Concrete engines live in the sqlitevec and memstore subpackages.
package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/harun/synmem/internal/observability"
	"github.com/harun/synmem/pkg/memory"
	"github.com/rs/zerolog"
)

// RetryConfig bounds the retries of transient storage failures.
type RetryConfig struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          zerolog.Logger
}

// DefaultRetryConfig allows three attempts with a short exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Logger:          zerolog.Nop(),
	}
}

// Retrying retries operations of the wrapped store that fail with
// memory.ErrIOFailure. Every other error, including memory.ErrInconsistent,
// is returned on the first occurrence.
type Retrying struct {
	inner memory.Store
	cfg   RetryConfig
}

var _ memory.Store = (*Retrying)(nil)

// WithRetry wraps inner. Zero fields in cfg take their defaults.
func WithRetry(inner memory.Store, cfg RetryConfig) *Retrying {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	return &Retrying{inner: inner, cfg: cfg}
}

// Unwrap returns the decorated store.
func (r *Retrying) Unwrap() memory.Store { return r.inner }

func retry[T any](ctx context.Context, r *Retrying, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !memory.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			observability.RecordStorageRetry(op)
			r.cfg.Logger.Warn().
				Err(err).
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("Transient storage failure, retrying")
		}),
	)
}

func (r *Retrying) StoreMemory(ctx context.Context, m *memory.Memory, embedding []float32) error {
	_, err := retry(ctx, r, "store", func() (struct{}, error) {
		return struct{}{}, r.inner.StoreMemory(ctx, m, embedding)
	})
	return err
}

func (r *Retrying) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	return retry(ctx, r, "get", func() (*memory.Memory, error) {
		return r.inner.GetMemory(ctx, id)
	})
}

func (r *Retrying) GetRecent(ctx context.Context, limit int) ([]memory.Memory, error) {
	return retry(ctx, r, "recent", func() ([]memory.Memory, error) {
		return r.inner.GetRecent(ctx, limit)
	})
}

func (r *Retrying) DeleteMemory(ctx context.Context, id string) (bool, error) {
	return retry(ctx, r, "delete", func() (bool, error) {
		return r.inner.DeleteMemory(ctx, id)
	})
}

func (r *Retrying) FullTextSearch(ctx context.Context, query string, limit int) ([]memory.ScoredMemory, error) {
	return retry(ctx, r, "fts", func() ([]memory.ScoredMemory, error) {
		return r.inner.FullTextSearch(ctx, query, limit)
	})
}

func (r *Retrying) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]memory.ScoredMemory, error) {
	return retry(ctx, r, "vector", func() ([]memory.ScoredMemory, error) {
		return r.inner.VectorSearch(ctx, embedding, limit)
	})
}

func (r *Retrying) Stats(ctx context.Context) (memory.Stats, error) {
	return retry(ctx, r, "stats", func() (memory.Stats, error) {
		return r.inner.Stats(ctx)
	})
}

func (r *Retrying) Compact(ctx context.Context) error {
	_, err := retry(ctx, r, "compact", func() (struct{}, error) {
		return struct{}{}, r.inner.Compact(ctx)
	})
	return err
}

func (r *Retrying) Dimension() int { return r.inner.Dimension() }

func (r *Retrying) Close() error { return r.inner.Close() }
