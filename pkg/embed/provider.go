package embed

import "context"

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// RerankResult is a single cross-encoder score for a (query, doc) pair.
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Reranker scores (query, document) pairs jointly with a cross-encoder.
// Results are sorted by score descending; scores are sigmoid-squashed into [0,1].
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topK int) ([]RerankResult, error)
}
