package query

import (
	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/search"
)

// DefaultLimit is used by ApplyDefaults when a request omits its limit.
const DefaultLimit = 10

// Search modes.
const (
	ModeHybrid = "hybrid"
	ModeFTS    = "fts"
	ModeVector = "vector"
)

// SearchParams is the request shape accepted by adapters.
type SearchParams struct {
	Query        string   `json:"query"`
	Limit        int      `json:"limit,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	ContentTypes []string `json:"content_types,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// ApplyDefaults fills an omitted limit and mode.
func (p *SearchParams) ApplyDefaults() {
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Mode == "" {
		p.Mode = ModeHybrid
	}
}

func (p *SearchParams) filter() search.Filter {
	return search.Filter{ContentTypes: p.ContentTypes, Tags: p.Tags}
}

// StoreParams is a memory as submitted by a producer.
type StoreParams struct {
	ID          string            `json:"id,omitempty"`
	Content     string            `json:"content"`
	Source      string            `json:"source"`
	Title       string            `json:"title,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Memory converts the params to a memory ready to be stored.
func (p *StoreParams) Memory() *memory.Memory {
	m := &memory.Memory{
		ID:          p.ID,
		Content:     p.Content,
		Source:      p.Source,
		Title:       p.Title,
		ContentType: p.ContentType,
		Metadata:    p.Metadata,
	}
	if len(p.Tags) > 0 {
		m.Tags = append([]string(nil), p.Tags...)
	}
	return m
}
