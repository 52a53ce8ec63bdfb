package search

import (
	"errors"
	"fmt"
	"time"

	"github.com/harun/synmem/pkg/memory"
	"github.com/rs/zerolog"
)

const (
	DefaultFTSWeight    = 0.4
	DefaultVectorWeight = 0.6
	DefaultOverfetch    = 3
	DefaultMaxLimit     = 100
)

// Config tunes the coordinator. Weights are rescaled to sum to 1 so fused
// scores stay in [0,1].
type Config struct {
	FTSWeight    float64
	VectorWeight float64

	// Overfetch multiplies limit for each sub-search. Must be at least 2.
	Overfetch int

	// MaxLimit caps the requested limit.
	MaxLimit int

	// SubSearchTimeout bounds the embedding call and both sub-searches.
	// Zero relies on the caller's deadline only.
	SubSearchTimeout time.Duration

	// DedupThreshold drops a result whose word-set Jaccard similarity with a
	// higher-ranked result reaches the threshold. Zero disables it.
	DedupThreshold float64

	SnippetLength int

	Logger zerolog.Logger
}

// DefaultConfig returns the stock fusion settings.
func DefaultConfig() Config {
	return Config{
		FTSWeight:     DefaultFTSWeight,
		VectorWeight:  DefaultVectorWeight,
		Overfetch:     DefaultOverfetch,
		MaxLimit:      DefaultMaxLimit,
		SnippetLength: memory.DefaultSnippetLength,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.FTSWeight < 0 || c.VectorWeight < 0 {
		return errors.New("fusion weights must not be negative")
	}
	if c.FTSWeight+c.VectorWeight == 0 {
		return errors.New("at least one fusion weight must be positive")
	}
	if c.Overfetch < 2 {
		return fmt.Errorf("overfetch must be at least 2, got %d", c.Overfetch)
	}
	if c.MaxLimit <= 0 {
		return fmt.Errorf("max limit must be positive, got %d", c.MaxLimit)
	}
	if c.SubSearchTimeout < 0 {
		return errors.New("sub-search timeout must not be negative")
	}
	if c.DedupThreshold < 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("dedup threshold must be within [0,1], got %g", c.DedupThreshold)
	}
	return nil
}

func (c Config) normalized() Config {
	sum := c.FTSWeight + c.VectorWeight
	c.FTSWeight /= sum
	c.VectorWeight /= sum
	if c.SnippetLength <= 0 {
		c.SnippetLength = memory.DefaultSnippetLength
	}
	return c
}
