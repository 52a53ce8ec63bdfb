// Package embedding turns text into fixed-dimension vectors.
//
// Providers are safe for concurrent use and never mutate their configuration
// after construction. HashProvider is a deterministic stand-in that needs no
// model; OpenAIProvider calls a hosted embedding model; CachedProvider wraps
// either with an in-process cache.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxInputLength bounds input text in runes.
const DefaultMaxInputLength = 8192

var (
	ErrEmptyInput          = errors.New("embedding: empty input")
	ErrInputTooLong        = errors.New("embedding: input too long")
	ErrProviderUnavailable = errors.New("embedding: provider unavailable")
)

// InputTooLongError reports the configured limit and the offending length.
type InputTooLongError struct {
	Max    int
	Actual int
}

func (e *InputTooLongError) Error() string {
	return fmt.Sprintf("embedding: input too long: %d runes exceeds limit of %d", e.Actual, e.Max)
}

func (e *InputTooLongError) Is(target error) bool {
	return target == ErrInputTooLong
}

// Provider generates vector embeddings from text.
type Provider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	// Model identifies the model version; identical (text, model) pairs
	// always produce identical vectors.
	Model() string
}

// Validate rejects empty text and text longer than maxLen runes.
// A non-positive maxLen means DefaultMaxInputLength.
func Validate(text string, maxLen int) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLength
	}
	if n := utf8.RuneCountInString(text); n > maxLen {
		return &InputTooLongError{Max: maxLen, Actual: n}
	}
	return nil
}

func validateAll(texts []string, maxLen int) error {
	if len(texts) == 0 {
		return ErrEmptyInput
	}
	for i, text := range texts {
		if err := Validate(text, maxLen); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}
