package embed

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Service bundles the encoder and the cross-encoder behind one handle.
// It is a process-wide lazy singleton: construction is cheap, models load on
// first use, and a failed initialization leaves the service retryable.
type Service struct {
	provider Provider
	reranker Reranker
}

var (
	serviceMu   sync.Mutex
	serviceInst *Service
	serviceInit func() (*Service, error)
)

// Configure installs the constructor the singleton uses. Must be called before
// the first Get. Calling it again resets the instance.
func Configure(init func() (*Service, error)) {
	serviceMu.Lock()
	defer serviceMu.Unlock()
	serviceInit = init
	serviceInst = nil
}

// Get returns the shared service, constructing it on first call.
// A constructor error is returned to the caller and the next Get retries.
func Get() (*Service, error) {
	serviceMu.Lock()
	defer serviceMu.Unlock()

	if serviceInst != nil {
		return serviceInst, nil
	}
	if serviceInit == nil {
		return nil, fmt.Errorf("embedding service not configured")
	}

	svc, err := serviceInit()
	if err != nil {
		return nil, fmt.Errorf("initialize embedding service: %w", err)
	}
	serviceInst = svc
	return serviceInst, nil
}

// Reset drops the cached instance. Test hook.
func Reset() {
	serviceMu.Lock()
	defer serviceMu.Unlock()
	serviceInst = nil
}

// NewService wraps a provider and an optional reranker.
func NewService(provider Provider, reranker Reranker) *Service {
	return &Service{provider: provider, reranker: reranker}
}

func (s *Service) Dimension() int {
	return s.provider.Dimension()
}

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.provider.Embed(ctx, text)
}

func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.provider.EmbedBatch(ctx, texts)
}

// Rerank scores docs against the query with the cross-encoder.
func (s *Service) Rerank(ctx context.Context, query string, docs []string, topK int) ([]RerankResult, error) {
	if s.reranker == nil {
		return nil, fmt.Errorf("no reranker configured")
	}
	return s.reranker.Rerank(ctx, query, docs, topK)
}

// HasReranker reports whether a cross-encoder is available.
func (s *Service) HasReranker() bool {
	return s.reranker != nil
}

func sortRerankResults(results []RerankResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
