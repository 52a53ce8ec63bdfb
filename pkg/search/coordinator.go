// Package search implements hybrid retrieval over a memory.Store: it embeds
// the query, runs the full-text and vector searches concurrently, normalizes
// each ranking to [0,1] and fuses them with configurable weights.
//
// Embedding failures and sub-search timeouts degrade the response instead of
// failing it. A Response reports the degradation and its reasons.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/harun/synmem/internal/observability"
	"github.com/harun/synmem/internal/tracing"
	"github.com/harun/synmem/pkg/embedding"
	"github.com/harun/synmem/pkg/memory"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "synmem.memory"

var (
	// ErrInvalidInput is returned for an empty query or a non-positive limit.
	ErrInvalidInput = errors.New("search: invalid input")
	// ErrTimeout is returned when the deadline expired before any
	// sub-search completed.
	ErrTimeout = errors.New("search: deadline exceeded")
)

// Degradation reasons reported in Response.Reasons.
const (
	ReasonEmbeddingUnavailable = "embedding_unavailable"
	ReasonFTSFailed            = "fts_failed"
	ReasonFTSTimeout           = "fts_timeout"
	ReasonVectorFailed         = "vector_failed"
	ReasonVectorTimeout        = "vector_timeout"
)

// Request is a hybrid search.
type Request struct {
	Query  string
	Limit  int
	Filter Filter
}

// Response is a ranked, de-duplicated list of at most Limit results.
type Response struct {
	Results  []memory.SearchResult `json:"results"`
	Degraded bool                  `json:"degraded"`
	Reasons  []string              `json:"reasons,omitempty"`
}

func (r *Response) degrade(reason string) {
	r.Degraded = true
	r.Reasons = append(r.Reasons, reason)
}

// Coordinator runs hybrid, single-signal and recency queries. It holds no
// locks; the store and provider are shared read-only.
type Coordinator struct {
	store    memory.Store
	embedder embedding.Provider
	cfg      Config
	logger   zerolog.Logger
}

// New validates cfg and returns a coordinator over store and embedder.
func New(store memory.Store, embedder embedding.Provider, cfg Config) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("search: store is required")
	}
	if embedder == nil {
		return nil, errors.New("search: embedding provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if embedder.Dimension() != store.Dimension() {
		return nil, &memory.DimensionMismatchError{Expected: store.Dimension(), Actual: embedder.Dimension()}
	}
	cfg = cfg.normalized()
	return &Coordinator{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "search").Logger(),
	}, nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// validate clamps limit to MaxLimit.
func (c *Coordinator) validate(query string, limit int) (int, error) {
	if strings.TrimSpace(query) == "" {
		return 0, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}
	if limit > c.cfg.MaxLimit {
		limit = c.cfg.MaxLimit
	}
	if limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	return limit, nil
}

func (c *Coordinator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.SubSearchTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.SubSearchTimeout)
	}
	return context.WithCancel(ctx)
}

type subResult struct {
	hits        []memory.ScoredMemory
	err         error
	embedFailed bool
}

// Search runs a hybrid search.
func (c *Coordinator) Search(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	limit, err := c.validate(req.Query, req.Limit)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.search",
		attribute.String("search.mode", "hybrid"),
		attribute.Int("search.limit", limit),
	)
	defer func() {
		n := 0
		if resp != nil {
			n = len(resp.Results)
			span.SetAttributes(attribute.Bool("search.degraded", resp.Degraded), attribute.Int("search.results", n))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		observability.RecordSearch("hybrid", time.Since(start), n, err == nil)
	}()

	logger := tracing.LoggerFromContext(ctx, c.logger)
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	resp = &Response{}
	k := limit * c.cfg.Overfetch

	// Full-text search does not need the query vector, so it starts at once.
	// The vector branch embeds first; no lock is held while the provider
	// blocks on inference.
	ftsCh := make(chan subResult, 1)
	vecCh := make(chan subResult, 1)
	var embedded atomic.Bool
	go func() {
		hits, err := c.store.FullTextSearch(ctx, req.Query, k)
		ftsCh <- subResult{hits: hits, err: err}
	}()
	go func() {
		qvec, err := c.embedder.GenerateEmbedding(ctx, req.Query)
		if err != nil {
			vecCh <- subResult{err: err, embedFailed: true}
			return
		}
		embedded.Store(true)
		hits, err := c.store.VectorSearch(ctx, qvec, k)
		vecCh <- subResult{hits: hits, err: err}
	}()

	fts, vec := join(ctx, ftsCh, vecCh)

	var ftsHits, vecHits []memory.ScoredMemory
	var firstErr error
	switch {
	case fts == nil:
		resp.degrade(ReasonFTSTimeout)
	case fts.err != nil:
		firstErr = fts.err
		if ctx.Err() != nil && errors.Is(fts.err, ctx.Err()) {
			resp.degrade(ReasonFTSTimeout)
		} else {
			resp.degrade(ReasonFTSFailed)
		}
	default:
		ftsHits = fts.hits
	}
	var embedErr error
	switch {
	case vec == nil && !embedded.Load():
		embedErr = ctx.Err()
		resp.degrade(ReasonEmbeddingUnavailable)
	case vec == nil:
		resp.degrade(ReasonVectorTimeout)
	case vec.embedFailed:
		embedErr = vec.err
		resp.degrade(ReasonEmbeddingUnavailable)
	case vec.err != nil:
		if firstErr == nil {
			firstErr = vec.err
		}
		if ctx.Err() != nil && errors.Is(vec.err, ctx.Err()) {
			resp.degrade(ReasonVectorTimeout)
		} else {
			resp.degrade(ReasonVectorFailed)
		}
	default:
		vecHits = vec.hits
	}
	if embedErr != nil {
		logger.Warn().Err(embedErr).Msg("Query embedding failed, falling back to full-text search")
	}

	ftsOK := fts != nil && fts.err == nil
	vecOK := vec != nil && vec.err == nil
	var cands []*candidate
	switch {
	case ftsOK && vecOK:
		cands = fuse(ftsHits, vecHits, c.cfg.FTSWeight, c.cfg.VectorWeight)
	case ftsOK:
		cands = single(ftsHits, memory.SourceFTS)
	case vecOK:
		cands = single(vecHits, memory.SourceVector)
	default:
		if firstErr == nil {
			firstErr = ctx.Err()
		}
		if firstErr == nil {
			firstErr = embedErr
		}
		return nil, c.subSearchError(ctx, firstErr)
	}

	if resp.Degraded {
		logger.Warn().Strs("reasons", resp.Reasons).Msg("Hybrid search degraded")
		for _, r := range resp.Reasons {
			observability.RecordSearchDegraded(r)
		}
	}

	resp.Results = c.finish(cands, req.Query, limit, req.Filter)
	logger.Debug().
		Int("fts_hits", len(ftsHits)).
		Int("vector_hits", len(vecHits)).
		Int("results", len(resp.Results)).
		Msg("Hybrid search complete")
	return resp, nil
}

// join waits for both sub-searches or the deadline, whichever comes first.
// A nil result means that sub-search had not finished. The channels are
// buffered so late senders never block.
func join(ctx context.Context, ftsCh, vecCh <-chan subResult) (fts, vec *subResult) {
	for fts == nil || vec == nil {
		select {
		case r := <-ftsCh:
			fts = &r
		case r := <-vecCh:
			vec = &r
		case <-ctx.Done():
			if fts == nil {
				select {
				case r := <-ftsCh:
					fts = &r
				default:
				}
			}
			if vec == nil {
				select {
				case r := <-vecCh:
					vec = &r
				default:
				}
			}
			return fts, vec
		}
	}
	return fts, vec
}

// subSearchError maps a failure with no usable result. An expired deadline
// becomes ErrTimeout; anything else is returned as is.
func (c *Coordinator) subSearchError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

func (c *Coordinator) finish(cands []*candidate, query string, limit int, filter Filter) []memory.SearchResult {
	cands = applyFilter(cands, filter)
	rank(cands)
	cands = dedupNear(cands, c.cfg.DedupThreshold)
	if len(cands) > limit {
		cands = cands[:limit]
	}

	out := make([]memory.SearchResult, len(cands))
	for i, cand := range cands {
		r := memory.NewSearchResult(&cand.mem, query, c.cfg.SnippetLength, cand.score, cand.source())
		r.FTSScore = cand.fts
		r.VectorScore = cand.vector
		out[i] = r
	}
	return out
}

// SearchFTS returns the full-text ranking alone, normalized to [0,1].
func (c *Coordinator) SearchFTS(ctx context.Context, query string, limit int) ([]memory.SearchResult, error) {
	return c.searchSingle(ctx, "fts", query, limit, func(ctx context.Context) ([]memory.ScoredMemory, error) {
		return c.store.FullTextSearch(ctx, query, limit)
	})
}

// SearchVector embeds query and returns the similarity ranking alone,
// normalized to [0,1]. Embedding failures are returned to the caller.
func (c *Coordinator) SearchVector(ctx context.Context, query string, limit int) ([]memory.SearchResult, error) {
	return c.searchSingle(ctx, "vector", query, limit, func(ctx context.Context) ([]memory.ScoredMemory, error) {
		qvec, err := c.embedder.GenerateEmbedding(ctx, query)
		if err != nil {
			return nil, err
		}
		return c.store.VectorSearch(ctx, qvec, limit)
	})
}

func (c *Coordinator) searchSingle(ctx context.Context, mode, query string, limit int, run func(context.Context) ([]memory.ScoredMemory, error)) (results []memory.SearchResult, err error) {
	start := time.Now()
	limit, err = c.validate(query, limit)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.search",
		attribute.String("search.mode", mode),
		attribute.Int("search.limit", limit),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		observability.RecordSearch(mode, time.Since(start), len(results), err == nil)
	}()

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	hits, err := run(ctx)
	if err != nil {
		return nil, c.subSearchError(ctx, err)
	}
	tag := memory.SourceFTS
	if mode == "vector" {
		tag = memory.SourceVector
	}
	return c.finish(single(hits, tag), query, limit, Filter{}), nil
}

// GetRecent lists the most recently stored memories. It is not a ranking:
// every entry has score 0 and source "recent".
func (c *Coordinator) GetRecent(ctx context.Context, limit int) (results []memory.SearchResult, err error) {
	start := time.Now()
	defer func() {
		observability.RecordSearch("recent", time.Since(start), len(results), err == nil)
	}()

	if limit > c.cfg.MaxLimit {
		limit = c.cfg.MaxLimit
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	mems, err := c.store.GetRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	results = make([]memory.SearchResult, len(mems))
	for i := range mems {
		results[i] = memory.NewSearchResult(&mems[i], "", c.cfg.SnippetLength, 0, memory.SourceRecent)
	}
	return results, nil
}
