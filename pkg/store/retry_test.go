package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/harun/synmem/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first failures calls of every operation with err.
type flakyStore struct {
	memory.Store
	err      error
	failures int
	calls    int
}

func (f *flakyStore) next() error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyStore) StoreMemory(_ context.Context, m *memory.Memory, _ []float32) error {
	return f.next()
}

func (f *flakyStore) GetMemory(_ context.Context, id string) (*memory.Memory, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return &memory.Memory{ID: id, Content: "c", Source: "s"}, nil
}

func (f *flakyStore) DeleteMemory(_ context.Context, _ string) (bool, error) {
	if err := f.next(); err != nil {
		return false, err
	}
	return true, nil
}

func (f *flakyStore) FullTextSearch(_ context.Context, _ string, _ int) ([]memory.ScoredMemory, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return []memory.ScoredMemory{{Memory: memory.Memory{ID: "a"}, Score: 1}}, nil
}

func (f *flakyStore) Dimension() int { return 3 }

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func transient() error {
	return fmt.Errorf("%w: database is locked", memory.ErrIOFailure)
}

func TestRetrying_RecoversFromTransientFailure(t *testing.T) {
	inner := &flakyStore{err: transient(), failures: 2}
	s := WithRetry(inner, fastRetry())

	got, err := s.GetMemory(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", got.ID)
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyStore{err: transient(), failures: 10}
	s := WithRetry(inner, fastRetry())

	err := s.StoreMemory(context.Background(), &memory.Memory{}, nil)
	assert.ErrorIs(t, err, memory.ErrIOFailure)
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_DoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "inconsistent", err: fmt.Errorf("%w: rollback failed", memory.ErrInconsistent)},
		{name: "not found", err: memory.ErrNotFound},
		{name: "dimension", err: &memory.DimensionMismatchError{Expected: 3, Actual: 2}},
		{name: "plain", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &flakyStore{err: tt.err, failures: 10}
			s := WithRetry(inner, fastRetry())

			_, err := s.DeleteMemory(context.Background(), "x")
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, inner.calls)
		})
	}
}

func TestRetrying_StopsOnCancelledContext(t *testing.T) {
	inner := &flakyStore{err: transient(), failures: 10}
	s := WithRetry(inner, RetryConfig{MaxAttempts: 5, InitialInterval: time.Hour, MaxInterval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.FullTextSearch(ctx, "q", 1)
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_Defaults(t *testing.T) {
	s := WithRetry(&flakyStore{}, RetryConfig{})
	assert.Equal(t, 3, s.cfg.MaxAttempts)
	assert.Equal(t, 3, s.Dimension())
	assert.NotNil(t, s.Unwrap())
}
