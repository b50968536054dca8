package engram

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/foramoment/engram-ai-memory/internal/observability"
	"github.com/foramoment/engram-ai-memory/internal/tracing"
)

// GraphScore is the sentinel score carried by graph-expansion results.
const GraphScore = -1.0

var sinceRe = regexp.MustCompile(`^(\d+)([hdwm])$`)

// ParseSince compiles a {N}{h|d|w|m} window into the corresponding lower time
// bound relative to now.
func ParseSince(s string) (time.Time, error) {
	m := sinceRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: since %q, want {N}{h|d|w|m}", ErrInvalidArgument, s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: since %q: %v", ErrInvalidArgument, s, err)
	}

	var unit time.Duration
	switch m[2] {
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	case "m":
		unit = 30 * 24 * time.Hour
	}
	return time.Now().Add(-time.Duration(n) * unit), nil
}

// SemanticOptions tunes SearchSemantic.
type SemanticOptions struct {
	K               int
	Type            MemoryType
	Since           string
	IncludeArchived bool
}

// SearchSemantic embeds the query and returns the k nearest memories by cosine
// similarity. The probe over-fetches 2k and post-filters.
func (e *Engine) SearchSemantic(ctx context.Context, query string, opts SemanticOptions) ([]SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "engram.search.semantic",
		attribute.String("query", query))
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordSearch("semantic", time.Since(start)) }()

	if opts.K <= 0 {
		opts.K = 10
	}
	var since *time.Time
	if opts.Since != "" {
		bound, err := ParseSince(opts.Since)
		if err != nil {
			return nil, err
		}
		since = &bound
	}

	vec, err := e.embedText(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.store.KNN(ctx, vec, 2*opts.K, VectorFilter{
		Type:            opts.Type,
		IncludeArchived: opts.IncludeArchived,
	})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, opts.K)
	for _, h := range hits {
		m, ok, err := e.Get(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if since != nil && m.CreatedAt.Before(*since) {
			continue
		}
		results = append(results, SearchResult{Memory: m, Score: 1.0 - h.Distance})
		if len(results) == opts.K {
			break
		}
	}
	return results, nil
}

// FTSOptions tunes SearchFTS.
type FTSOptions struct {
	K     int
	Type  MemoryType
	Since string
}

// SearchFTS runs a BM25-ranked lexical search. Archived memories never match.
func (e *Engine) SearchFTS(ctx context.Context, query string, opts FTSOptions) ([]SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "engram.search.fts",
		attribute.String("query", query))
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordSearch("fts", time.Since(start)) }()

	if opts.K <= 0 {
		opts.K = 10
	}
	filter := SearchFilter{Type: opts.Type}
	if opts.Since != "" {
		bound, err := ParseSince(opts.Since)
		if err != nil {
			return nil, err
		}
		filter.Since = &bound
	}

	hits, err := e.store.FTS(ctx, ftsMatchQuery(query), opts.K, filter)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		m, ok, err := e.Get(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results = append(results, SearchResult{Memory: m, Score: h.BM25})
	}
	return results, nil
}

// HybridOptions tunes SearchHybrid.
type HybridOptions struct {
	K        int
	Type     MemoryType
	Since    string
	RRFK     int  // reciprocal rank fusion constant, default 60
	Rerank   bool // cross-encode the fused top candidates
	Hops     int  // graph expansion depth
	MaxTotal int  // cap on results after expansion, default K
}

// SearchHybrid fuses the semantic and lexical result lists with Reciprocal
// Rank Fusion, optionally reranks the fused top with the cross-encoder, and
// optionally expands along the link graph.
func (e *Engine) SearchHybrid(ctx context.Context, query string, opts HybridOptions) ([]SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "engram.search.hybrid",
		attribute.String("query", query))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)

	start := time.Now()
	defer func() { observability.RecordSearch("hybrid", time.Since(start)) }()

	if opts.K <= 0 {
		opts.K = 10
	}
	if opts.RRFK <= 0 {
		opts.RRFK = 60
	}
	if opts.MaxTotal <= 0 {
		opts.MaxTotal = opts.K
	}

	// Over-fetch both legs to stabilize ranking under later filter and budget cuts.
	fetch := 3 * opts.K
	if fetch < 20 {
		fetch = 20
	}

	var semantic, lexical []SearchResult
	var semErr, lexErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic, semErr = e.SearchSemantic(ctx, query, SemanticOptions{
			K: fetch, Type: opts.Type, Since: opts.Since,
		})
	}()
	go func() {
		defer wg.Done()
		lexical, lexErr = e.SearchFTS(ctx, query, FTSOptions{
			K: fetch, Type: opts.Type, Since: opts.Since,
		})
	}()
	wg.Wait()

	if semErr != nil && lexErr != nil {
		return nil, fmt.Errorf("both search legs failed: %v; %v", semErr, lexErr)
	}
	if semErr != nil {
		logger.Warn().Err(semErr).Msg("Semantic leg failed, fusing lexical only")
	}
	if lexErr != nil {
		logger.Warn().Err(lexErr).Msg("Lexical leg failed, fusing semantic only")
	}

	fused := fuseRRF([][]SearchResult{semantic, lexical}, opts.RRFK)

	if opts.Rerank && e.svc.HasReranker() {
		fused = e.rerank(ctx, logger, query, fused, opts.K)
	}
	if len(fused) > opts.K {
		fused = fused[:opts.K]
	}

	if opts.Hops > 0 {
		fused = e.expandResults(ctx, logger, fused, opts.Hops, opts.K, opts.MaxTotal)
	}
	return fused, nil
}

// fuseRRF merges ranked lists: a memory at 0-indexed rank r contributes
// 1/(rrfK + r + 1), scaled by a quality boost from its importance and
// strength priors. First-seen order across lists breaks score ties.
func fuseRRF(lists [][]SearchResult, rrfK int) []SearchResult {
	scores := make(map[int64]float64)
	memories := make(map[int64]Memory)
	var order []int64

	for _, list := range lists {
		for rank, r := range list {
			contribution := 1.0 / float64(rrfK+rank+1)
			contribution *= qualityBoost(r.Memory)
			if _, seen := scores[r.Memory.ID]; !seen {
				order = append(order, r.Memory.ID)
				memories[r.Memory.ID] = r.Memory
			}
			scores[r.Memory.ID] += contribution
		}
	}

	fused := make([]SearchResult, 0, len(order))
	for _, id := range order {
		fused = append(fused, SearchResult{Memory: memories[id], Score: scores[id]})
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}

func qualityBoost(m Memory) float64 {
	return 1.0 + 0.1*(m.Importance-0.5) + 0.05*(m.Strength-0.5)
}

// rerank cross-encodes the fused top candidates against the query and lets the
// reranker's order dominate. Failures keep the fused order.
func (e *Engine) rerank(ctx context.Context, logger zerolog.Logger, query string, fused []SearchResult, k int) []SearchResult {
	width := 2 * k
	if width < 10 {
		width = 10
	}
	if width > len(fused) {
		width = len(fused)
	}
	head := fused[:width]

	docs := make([]string, len(head))
	for i, r := range head {
		docs[i] = r.Memory.Title + "\n" + r.Memory.Content
	}

	start := time.Now()
	ranked, err := e.svc.Rerank(ctx, query, docs, 0)
	observability.RecordRerank(time.Since(start))
	if err != nil {
		logger.Warn().Err(err).Msg("Rerank failed, keeping fused order")
		return fused
	}

	out := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, SearchResult{Memory: head[r.Index].Memory, Score: r.Score})
	}
	return out
}

// expandResults walks the link graph from the current results and appends
// newly reached memories with the sentinel score until the result set reaches
// k (or maxTotal).
func (e *Engine) expandResults(ctx context.Context, logger zerolog.Logger, results []SearchResult, hops, k, maxTotal int) []SearchResult {
	limit := k
	if maxTotal > limit {
		limit = maxTotal
	}
	if len(results) >= limit {
		return results
	}

	seeds := make([]int64, len(results))
	for i, r := range results {
		seeds[i] = r.Memory.ID
	}

	found, err := e.Expand(ctx, seeds, hops)
	if err != nil {
		logger.Warn().Err(err).Msg("Graph expansion failed")
		return results
	}

	for _, id := range found {
		if len(results) >= limit {
			break
		}
		m, ok, err := e.Get(ctx, id)
		if err != nil || !ok || m.Archived {
			continue
		}
		results = append(results, SearchResult{Memory: m, Score: GraphScore})
	}
	return results
}

// ftsMatchQuery builds a sanitized OR query so free-text input cannot break
// the MATCH grammar and partial term overlap still ranks.
func ftsMatchQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' ||
			'0' <= r && r <= '9' || r > 127)
	})
	if len(terms) == 0 {
		return `""`
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"`
	}
	return strings.Join(quoted, " OR ")
}
