package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"

	"github.com/harun/synmem/pkg/memory"
)

// HashModel is the model version reported by HashProvider.
const HashModel = "feature-hash-v1"

// HashProvider is a deterministic provider based on signed feature hashing
// of word tokens and word bigrams. Texts that share words produce nearby
// vectors, which keeps store/search round trips reproducible without a model.
type HashProvider struct {
	dimension int
	maxLen    int
	failing   atomic.Bool
}

// NewHashProvider creates a hash provider. Dimension defaults to 384.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashProvider{dimension: dimension, maxLen: DefaultMaxInputLength}
}

// WithMaxInputLength sets the input limit in runes. Call before sharing.
func (p *HashProvider) WithMaxInputLength(n int) *HashProvider {
	p.maxLen = n
	return p
}

// SetFailing makes every call fail with ErrProviderUnavailable.
func (p *HashProvider) SetFailing(failing bool) {
	p.failing.Store(failing)
}

func (p *HashProvider) Dimension() int { return p.dimension }

func (p *HashProvider) Model() string { return HashModel }

func (p *HashProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if p.failing.Load() {
		return nil, unavailable(errors.New("hash provider forced offline"))
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	if err := Validate(text, p.maxLen); err != nil {
		return nil, err
	}
	return p.embed(text), nil
}

func (p *HashProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateAll(texts, p.maxLen); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *HashProvider) embed(text string) []float32 {
	vec := make([]float64, p.dimension)
	tokens := memory.Tokenize(text)
	if len(tokens) == 0 {
		tokens = []string{strings.TrimSpace(text)}
	}
	for i, tok := range tokens {
		p.addFeature(vec, tok, 1.0)
		if i+1 < len(tokens) {
			p.addFeature(vec, tok+" "+tokens[i+1], 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, p.dimension)
	for i, v := range vec {
		if norm > 0 {
			out[i] = float32(v / norm)
		}
	}
	return out
}

func (p *HashProvider) addFeature(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
