package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by point lookups for unknown ids.
	ErrNotFound = errors.New("memory: not found")
	// ErrInconsistent means a dual-index write or delete could not be
	// completed as one unit. It is never retried.
	ErrInconsistent = errors.New("memory: text and vector indices inconsistent")
	// ErrIOFailure is a transient storage failure; callers may retry.
	ErrIOFailure = errors.New("memory: storage io failure")
	// ErrDimensionMismatch is returned for vectors of the wrong length.
	ErrDimensionMismatch = errors.New("memory: embedding dimension mismatch")
	// ErrInvalidQuery is returned for empty or unusable query text.
	ErrInvalidQuery = errors.New("memory: invalid query")
	// ErrInvalidMemory is returned when a memory lacks content or source.
	ErrInvalidMemory = errors.New("memory: invalid memory")
	// ErrClosed is returned by engines after Close.
	ErrClosed = errors.New("memory: store closed")
)

// DimensionMismatchError carries the expected and actual vector length.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("memory: embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is lets errors.Is match ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// CheckDimension fails with *DimensionMismatchError when len(vec) != expected.
func CheckDimension(expected int, vec []float32) error {
	if len(vec) != expected {
		return &DimensionMismatchError{Expected: expected, Actual: len(vec)}
	}
	return nil
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrIOFailure)
}
