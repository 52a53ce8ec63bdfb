package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/synmem/internal/config"
	"github.com/harun/synmem/pkg/embedding"
	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/query"
	"github.com/harun/synmem/pkg/search"
	"github.com/harun/synmem/pkg/store"
	"github.com/harun/synmem/pkg/store/memstore"
	"github.com/harun/synmem/pkg/store/sqlitevec"
	"github.com/rs/zerolog"
)

// Components is the assembled memory stack. The daemon and the one-shot CLI
// commands build it the same way from the configuration.
type Components struct {
	Store       memory.Store
	Embedder    embedding.Provider
	Coordinator *search.Coordinator
	Service     *query.Service

	cache *embedding.CachedProvider
}

// Build opens the storage engine and wires provider, coordinator and query
// service. cfg must have its paths resolved.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Components, error) {
	embedder, cache, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	engine, err := newStore(ctx, cfg, embedder, logger)
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	c := &Components{
		Store: store.WithRetry(engine, store.RetryConfig{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: time.Duration(cfg.Retry.InitialInterval) * time.Millisecond,
			MaxInterval:     time.Duration(cfg.Retry.MaxInterval) * time.Millisecond,
			Logger:          logger,
		}),
		Embedder: embedder,
		cache:    cache,
	}

	c.Coordinator, err = search.New(c.Store, embedder, search.Config{
		FTSWeight:        cfg.Search.FTSWeight,
		VectorWeight:     cfg.Search.VectorWeight,
		Overfetch:        cfg.Search.Overfetch,
		MaxLimit:         cfg.Search.MaxLimit,
		SubSearchTimeout: time.Duration(cfg.Search.SubSearchTimeout) * time.Millisecond,
		DedupThreshold:   cfg.Search.DedupThreshold,
		SnippetLength:    cfg.Search.SnippetLength,
		Logger:           logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create search coordinator: %w", err)
	}

	c.Service, err = query.NewService(c.Coordinator, c.Store, embedder, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create query service: %w", err)
	}

	logger.Info().
		Str("engine", cfg.Storage.Engine).
		Str("provider", cfg.Embedding.Provider).
		Str("model", embedder.Model()).
		Int("dimension", embedder.Dimension()).
		Msg("Memory stack initialized")

	return c, nil
}

// Close releases the store and the embedding cache.
func (c *Components) Close() error {
	if c.cache != nil {
		c.cache.Close()
	}
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}

// newEmbedder builds the configured provider. Provider calls are
// instrumented below the cache so metrics count real requests only.
func newEmbedder(cfg config.EmbeddingConfig) (embedding.Provider, *embedding.CachedProvider, error) {
	var base embedding.Provider
	switch cfg.Provider {
	case "hash", "":
		base = embedding.NewHashProvider(cfg.Dimension).WithMaxInputLength(cfg.MaxInputLength)
	case "openai":
		p, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Dimension:      cfg.Dimension,
			MaxInputLength: cfg.MaxInputLength,
			Timeout:        time.Duration(cfg.Timeout) * time.Second,
			MaxRetries:     cfg.MaxRetries,
		})
		if err != nil {
			return nil, nil, err
		}
		base = p
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	instrumented := embedding.Instrument(base)
	if cfg.CacheEntries <= 0 {
		return instrumented, nil, nil
	}
	cache, err := embedding.NewCachedProvider(instrumented, cfg.CacheEntries, cfg.MaxInputLength)
	if err != nil {
		return nil, nil, err
	}
	return cache, cache, nil
}

func newStore(ctx context.Context, cfg *config.Config, embedder embedding.Provider, logger zerolog.Logger) (memory.Store, error) {
	switch cfg.Storage.Engine {
	case "sqlite", "":
		return sqlitevec.Open(ctx, sqlitevec.Config{
			Path:        cfg.Storage.Path,
			Dimension:   embedder.Dimension(),
			Model:       embedder.Model(),
			BusyTimeout: time.Duration(cfg.Storage.BusyTimeout) * time.Millisecond,
			Logger:      logger,
		})
	case "memory":
		return memstore.New(memstore.Config{
			Dimension: embedder.Dimension(),
			Model:     embedder.Model(),
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}
