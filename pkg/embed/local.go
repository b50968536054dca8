package embed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

const (
	// DefaultEncoderRepo is a multilingual long-context encoder producing
	// 1024-dim vectors.
	DefaultEncoderRepo = "BAAI/bge-m3"
	// DefaultRerankerRepo is the matching cross-encoder.
	DefaultRerankerRepo = "BAAI/bge-reranker-v2-m3"

	// EncoderDimension is the output width of the encoder. The store rejects
	// vectors of any other width once a database is created.
	EncoderDimension = 1024
)

// LocalConfig configures the ONNX-backed local provider.
type LocalConfig struct {
	CacheDir       string // model download cache, default ~/.engram/models
	EncoderRepo    string
	RerankerRepo   string
	OrtLibraryPath string
}

// LocalProvider runs the encoder and cross-encoder locally through ONNX Runtime.
// Models are downloaded to the cache directory on first use. It implements both
// Provider and Reranker.
type LocalProvider struct {
	cfg      LocalConfig
	mu       sync.Mutex
	session  *hugot.Session
	encoder  *pipelines.FeatureExtractionPipeline
	reranker *pipelines.TextClassificationPipeline
}

// NewLocalProvider creates a local provider. No model is loaded until the
// first Embed or Rerank call.
func NewLocalProvider(cfg LocalConfig) (*LocalProvider, error) {
	if cfg.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.CacheDir = filepath.Join(home, ".engram", "models")
	}
	if cfg.EncoderRepo == "" {
		cfg.EncoderRepo = DefaultEncoderRepo
	}
	if cfg.RerankerRepo == "" {
		cfg.RerankerRepo = DefaultRerankerRepo
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("create model cache dir: %w", err)
	}
	return &LocalProvider{cfg: cfg}, nil
}

func (p *LocalProvider) Dimension() int {
	return EncoderDimension
}

func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *LocalProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if err := p.ensureEncoder(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	output, err := p.encoder.RunPipeline(texts)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("encoder inference: %w", err)
	}
	if len(output.Embeddings) != len(texts) {
		return nil, fmt.Errorf("encoder returned %d embeddings for %d inputs", len(output.Embeddings), len(texts))
	}

	for i := range output.Embeddings {
		output.Embeddings[i] = Normalize(output.Embeddings[i])
	}
	return output.Embeddings, nil
}

// Rerank scores each document jointly with the query. The cross-encoder emits
// a single logit per pair; the classification head squashes it with a sigmoid.
func (p *LocalProvider) Rerank(_ context.Context, query string, docs []string, topK int) ([]RerankResult, error) {
	if err := p.ensureReranker(); err != nil {
		return nil, err
	}

	pairs := make([]string, len(docs))
	for i, doc := range docs {
		pairs[i] = query + "\n" + doc
	}

	p.mu.Lock()
	output, err := p.reranker.RunPipeline(pairs)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("reranker inference: %w", err)
	}
	if len(output.ClassificationOutputs) != len(docs) {
		return nil, fmt.Errorf("reranker returned %d scores for %d inputs", len(output.ClassificationOutputs), len(docs))
	}

	results := make([]RerankResult, len(docs))
	for i, scores := range output.ClassificationOutputs {
		var score float64
		if len(scores) > 0 {
			score = float64(scores[0].Score)
		}
		results[i] = RerankResult{Index: i, Score: score, Text: docs[i]}
	}

	sortRerankResults(results)
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (p *LocalProvider) ensureEncoder() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.encoder != nil {
		return nil
	}
	if err := p.ensureSession(); err != nil {
		return err
	}

	modelPath, err := p.ensureModel(p.cfg.EncoderRepo)
	if err != nil {
		return err
	}

	pipeline, err := hugot.NewPipeline(p.session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "engram-encoder",
	})
	if err != nil {
		return fmt.Errorf("create encoder pipeline: %w", err)
	}
	p.encoder = pipeline
	return nil
}

func (p *LocalProvider) ensureReranker() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reranker != nil {
		return nil
	}
	if err := p.ensureSession(); err != nil {
		return err
	}

	modelPath, err := p.ensureModel(p.cfg.RerankerRepo)
	if err != nil {
		return err
	}

	pipeline, err := hugot.NewPipeline(p.session, hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "engram-reranker",
	})
	if err != nil {
		return fmt.Errorf("create reranker pipeline: %w", err)
	}
	p.reranker = pipeline
	return nil
}

// ensureSession creates the shared ORT session. Callers hold p.mu.
func (p *LocalProvider) ensureSession() error {
	if p.session != nil {
		return nil
	}

	sessionOpts := []options.WithOption{
		options.WithIntraOpNumThreads(runtime.NumCPU()),
	}
	if p.cfg.OrtLibraryPath != "" {
		sessionOpts = append(sessionOpts, options.WithOnnxLibraryPath(p.cfg.OrtLibraryPath))
	}

	session, err := hugot.NewORTSession(sessionOpts...)
	if err != nil {
		return fmt.Errorf("create ORT session: %w", err)
	}
	p.session = session
	return nil
}

// ensureModel downloads repo into the cache dir if missing. Callers hold p.mu.
func (p *LocalProvider) ensureModel(repo string) (string, error) {
	local := filepath.Join(p.cfg.CacheDir, filepath.Base(repo))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	modelPath, err := hugot.DownloadModel(repo, p.cfg.CacheDir, hugot.NewDownloadOptions())
	if err != nil {
		return "", fmt.Errorf("download %s: %w", repo, err)
	}
	return modelPath, nil
}

// Close releases the ORT session.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		p.session.Destroy()
		p.session = nil
	}
	p.encoder = nil
	p.reranker = nil
	return nil
}
