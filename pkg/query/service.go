// Package query is the validating facade the browser agent and other
// adapters talk to. It clamps limits, rejects empty queries before they reach
// the coordinator and translates internal failures into *Error values with a
// stable Kind.
package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/harun/synmem/internal/observability"
	"github.com/harun/synmem/internal/tracing"
	"github.com/harun/synmem/pkg/embedding"
	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/search"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "synmem.memory"

// Service exposes memory operations to external callers. It holds no state
// beyond its collaborators.
type Service struct {
	coordinator *search.Coordinator
	store       memory.Store
	embedder    embedding.Provider
	maxLimit    int
	logger      zerolog.Logger
}

// NewService builds a service. The embedder must be the one the coordinator
// was built with so stored and query vectors share a space.
func NewService(coordinator *search.Coordinator, store memory.Store, embedder embedding.Provider, logger zerolog.Logger) (*Service, error) {
	if coordinator == nil || store == nil || embedder == nil {
		return nil, errors.New("query: coordinator, store and embedder are required")
	}
	return &Service{
		coordinator: coordinator,
		store:       store,
		embedder:    embedder,
		maxLimit:    coordinator.Config().MaxLimit,
		logger:      logger.With().Str("component", "query").Logger(),
	}, nil
}

// MaxLimit is the largest limit a caller can get.
func (s *Service) MaxLimit() int { return s.maxLimit }

func (s *Service) clamp(limit int) int {
	return max(1, min(limit, s.maxLimit))
}

func checkQuery(op, query string) error {
	if strings.TrimSpace(query) == "" {
		return invalid(op, KindInvalidQuery, "query must not be empty")
	}
	return nil
}

// Search runs the search selected by params.Mode. Single-signal modes return
// a non-degraded response.
func (s *Service) Search(ctx context.Context, params SearchParams) (*search.Response, error) {
	const op = "search"
	if err := checkQuery(op, params.Query); err != nil {
		return nil, err
	}
	limit := s.clamp(params.Limit)

	switch params.Mode {
	case "", ModeHybrid:
		resp, err := s.coordinator.Search(ctx, search.Request{Query: params.Query, Limit: limit, Filter: params.filter()})
		if err != nil {
			return nil, translate(op, err)
		}
		return resp, nil
	case ModeFTS:
		results, err := s.SearchFTS(ctx, params.Query, limit)
		if err != nil {
			return nil, err
		}
		return &search.Response{Results: results}, nil
	case ModeVector:
		results, err := s.SearchVector(ctx, params.Query, limit)
		if err != nil {
			return nil, err
		}
		return &search.Response{Results: results}, nil
	default:
		return nil, invalid(op, KindInvalidQuery, "unknown search mode "+params.Mode)
	}
}

// SearchFTS returns the full-text ranking only.
func (s *Service) SearchFTS(ctx context.Context, query string, limit int) ([]memory.SearchResult, error) {
	const op = "search_fts"
	if err := checkQuery(op, query); err != nil {
		return nil, err
	}
	results, err := s.coordinator.SearchFTS(ctx, query, s.clamp(limit))
	return results, translate(op, err)
}

// SearchVector returns the vector-similarity ranking only.
func (s *Service) SearchVector(ctx context.Context, query string, limit int) ([]memory.SearchResult, error) {
	const op = "search_vector"
	if err := checkQuery(op, query); err != nil {
		return nil, err
	}
	results, err := s.coordinator.SearchVector(ctx, query, s.clamp(limit))
	return results, translate(op, err)
}

// GetRecent lists the most recently stored memories.
func (s *Service) GetRecent(ctx context.Context, limit int) ([]memory.SearchResult, error) {
	results, err := s.coordinator.GetRecent(ctx, s.clamp(limit))
	return results, translate("get_recent", err)
}

// GetMemory returns one memory by id.
func (s *Service) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	const op = "get_memory"
	if strings.TrimSpace(id) == "" {
		return nil, invalid(op, KindNotFound, "id must not be empty")
	}
	m, err := s.store.GetMemory(ctx, id)
	return m, translate(op, err)
}

// StoreMemory embeds the content and writes the memory to both indices.
// An embedding failure fails the call; nothing is written without a vector.
func (s *Service) StoreMemory(ctx context.Context, params StoreParams) (stored *memory.Memory, err error) {
	const op = "store_memory"
	start := time.Now()
	m := params.Memory()

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.store",
		attribute.Int("memory.content_runes", len([]rune(m.Content))),
		attribute.String("memory.source", m.Source),
	)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	defer func() {
		id := m.ID
		status := "success"
		if err != nil {
			status = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn().Err(err).Str("memory_id", id).Msg("Store memory failed")
		}
		span.SetAttributes(attribute.String("memory.id", id))
		span.End()
		observability.RecordStore(time.Since(start), err == nil)
		observability.RecordMemoryAudit(ctx, "store", id, status, map[string]string{"source": m.Source})
	}()

	if err := m.Validate(); err != nil {
		return nil, translate(op, err)
	}

	// Embedding runs before any storage lock is taken.
	vec, err := s.embedder.GenerateEmbedding(ctx, m.Content)
	if err != nil {
		return nil, translate(op, err)
	}
	if err := s.store.StoreMemory(ctx, m, vec); err != nil {
		return nil, translate(op, err)
	}

	logger.Debug().Str("memory_id", m.ID).Msg("Memory stored")
	return m, nil
}

// DeleteMemory removes a memory from both indices. Deleting an unknown id
// reports false without error.
func (s *Service) DeleteMemory(ctx context.Context, id string) (existed bool, err error) {
	const op = "delete_memory"
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.delete", attribute.String("memory.id", id))
	defer func() {
		status := "deleted"
		switch {
		case err != nil:
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case !existed:
			status = "missing"
		}
		span.End()
		observability.RecordDelete(status)
		observability.RecordMemoryAudit(ctx, "delete", id, status, nil)
	}()

	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	existed, err = s.store.DeleteMemory(ctx, id)
	if err != nil {
		return false, translate(op, err)
	}
	return existed, nil
}

// Stats reports the storage engine state and refreshes the entries gauge.
func (s *Service) Stats(ctx context.Context) (memory.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return stats, translate("stats", err)
	}
	observability.SetMemoryEntries(stats.Count)
	return stats, nil
}
