package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceTag identifies which ranking produced a search result.
type SourceTag string

const (
	SourceFTS    SourceTag = "fts"
	SourceVector SourceTag = "vector"
	SourceHybrid SourceTag = "hybrid"
	// SourceRecent marks entries of a reverse-chronological listing.
	SourceRecent SourceTag = "recent"
)

// Memory is one stored unit of extracted content.
type Memory struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Source      string            `json:"source"`
	Title       string            `json:"title,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	// UpdatedAt is refreshed on every store and drives recency ordering.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields a producer must supply.
func (m *Memory) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil memory", ErrInvalidMemory)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidMemory)
	}
	if strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidMemory)
	}
	return nil
}

// Prepare validates m, assigns an id when missing and stamps it with now.
// Engines call it before touching any index.
func (m *Memory) Prepare(now time.Time) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now = Timestamp(now)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	} else {
		m.CreatedAt = Timestamp(m.CreatedAt)
	}
	m.UpdatedAt = now
	return nil
}

// Prepared returns a prepared copy of m and leaves m untouched, so a failed
// write does not change what the caller holds. After a successful write
// the engine copies the assigned fields back with Adopt.
func (m *Memory) Prepared(now time.Time) (*Memory, error) {
	p := m.Clone()
	if err := p.Prepare(now); err != nil {
		return nil, err
	}
	return p, nil
}

// Adopt copies the fields assigned on store (id and timestamps) from p.
func (m *Memory) Adopt(p *Memory) {
	m.ID = p.ID
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// Clone returns a deep copy of m.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	if m.Metadata != nil {
		c.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// HasTag reports whether m carries tag (case-insensitive).
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Timestamp normalizes t to UTC without a monotonic reading so that
// values survive a round trip through any engine unchanged.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Round(0)
}

// ScoredMemory is a raw hit from one of the storage search primitives.
// Score is engine-specific and not normalized.
type ScoredMemory struct {
	Memory Memory
	Score  float64
}

// SearchResult is one entry of a ranked list returned to callers.
type SearchResult struct {
	MemoryID    string    `json:"memory_id"`
	Title       string    `json:"title,omitempty"`
	SourceRef   string    `json:"source_ref"`
	ContentType string    `json:"content_type,omitempty"`
	Snippet     string    `json:"snippet"`
	Score       float64   `json:"score"`
	Source      SourceTag `json:"source"`
	UpdatedAt   time.Time `json:"updated_at"`
	FTSScore    *float64  `json:"fts_score,omitempty"`
	VectorScore *float64  `json:"vector_score,omitempty"`
}

// NewSearchResult builds a result for m with the given score and tag.
func NewSearchResult(m *Memory, query string, snippetLen int, score float64, source SourceTag) SearchResult {
	return SearchResult{
		MemoryID:    m.ID,
		Title:       m.Title,
		SourceRef:   m.Source,
		ContentType: m.ContentType,
		Snippet:     Snippet(m.Content, query, snippetLen),
		Score:       score,
		Source:      source,
		UpdatedAt:   m.UpdatedAt,
	}
}

// Stats describes the state of a storage engine.
type Stats struct {
	Engine    string `json:"engine"`
	Count     int    `json:"count"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model,omitempty"`
	Path      string `json:"path,omitempty"`
}
