package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/synmem/pkg/embedding"
	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/search"
)

// Kind is the caller-facing classification of a failure.
type Kind string

const (
	KindEmptyInput          Kind = "empty_input"
	KindInputTooLong        Kind = "input_too_long"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindNotFound            Kind = "not_found"
	KindInconsistent        Kind = "inconsistent"
	KindIOFailure           Kind = "io_failure"
	KindDimensionMismatch   Kind = "dimension_mismatch"
	KindInvalidQuery        Kind = "invalid_query"
	KindTimeout             Kind = "timeout"
	KindInvalidMemory       Kind = "invalid_memory"
	KindInternal            Kind = "internal"
)

// Category groups kinds into embedding, storage and search errors.
func (k Kind) Category() string {
	switch k {
	case KindEmptyInput, KindInputTooLong, KindProviderUnavailable:
		return "embedding"
	case KindNotFound, KindInconsistent, KindIOFailure, KindDimensionMismatch, KindInvalidMemory:
		return "storage"
	case KindInvalidQuery, KindTimeout:
		return "search"
	default:
		return "internal"
	}
}

// Retryable reports whether the caller may repeat the same request.
func (k Kind) Retryable() bool {
	return k == KindProviderUnavailable || k == KindIOFailure || k == KindTimeout
}

// Error is returned by every Service operation.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// kindTable is checked in order; the first match wins.
var kindTable = []struct {
	target error
	kind   Kind
}{
	{embedding.ErrEmptyInput, KindEmptyInput},
	{embedding.ErrInputTooLong, KindInputTooLong},
	{embedding.ErrProviderUnavailable, KindProviderUnavailable},
	{memory.ErrInvalidMemory, KindInvalidMemory},
	{memory.ErrNotFound, KindNotFound},
	{memory.ErrInconsistent, KindInconsistent},
	{memory.ErrDimensionMismatch, KindDimensionMismatch},
	{search.ErrTimeout, KindTimeout},
	{context.DeadlineExceeded, KindTimeout},
	{memory.ErrIOFailure, KindIOFailure},
	{memory.ErrInvalidQuery, KindInvalidQuery},
	{search.ErrInvalidInput, KindInvalidQuery},
}

// KindOf classifies err. Errors already translated keep their kind.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.target) {
			return entry.kind
		}
	}
	return KindInternal
}

func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return err
	}
	return &Error{Op: op, Kind: KindOf(err), Err: err}
}

func invalid(op string, kind Kind, msg string) error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}
