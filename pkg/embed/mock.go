package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
	"strings"
)

// MockProvider is a deterministic embedding provider for tests. Each token is
// hashed into a fixed pseudo-random direction and the token directions are
// summed and normalized, so texts sharing tokens produce similar vectors.
type MockProvider struct {
	dimension int
}

// NewMockProvider creates a mock provider with the given dimension.
func NewMockProvider(dimension int) *MockProvider {
	return &MockProvider{dimension: dimension}
}

func (p *MockProvider) Dimension() int {
	return p.dimension
}

func (p *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimension)
	for _, token := range tokenize(text) {
		h := sha256.Sum256([]byte(token))
		for i := 0; i < p.dimension; i++ {
			// Re-hash in 8-byte windows so any dimension gets a value.
			word := binary.LittleEndian.Uint64(h[(i*8)%24:])
			word ^= uint64(i) * 0x9e3779b97f4a7c15
			// Map to [-1, 1]
			vec[i] += float32(int64(word)) / float32(math.MaxInt64)
		}
	}
	return Normalize(vec), nil
}

func (p *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// MockReranker scores documents by token overlap with the query,
// squashed through a sigmoid like a real cross-encoder logit.
type MockReranker struct{}

func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

func (r *MockReranker) Rerank(_ context.Context, query string, docs []string, topK int) ([]RerankResult, error) {
	queryTokens := map[string]bool{}
	for _, t := range tokenize(query) {
		queryTokens[t] = true
	}

	results := make([]RerankResult, 0, len(docs))
	for i, doc := range docs {
		overlap := 0
		docTokens := tokenize(doc)
		for _, t := range docTokens {
			if queryTokens[t] {
				overlap++
			}
		}
		// Centre the logit so zero overlap lands below 0.5.
		logit := float64(overlap) - 1.0
		results = append(results, RerankResult{
			Index: i,
			Score: sigmoid(logit),
			Text:  doc,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	})
	return fields
}
