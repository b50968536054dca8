package engram

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/foramoment/engram-ai-memory/internal/observability"
	"github.com/foramoment/engram-ai-memory/internal/tracing"
)

// RecallOptions tunes the focus-of-attention assembler.
type RecallOptions struct {
	K         int        // candidate pool size, default 10
	Budget    int        // token budget, default 4000
	Type      MemoryType // optional type filter
	SessionID string     // attach session context and log accesses under it
}

// RecallMemory is one packed memory with its scoring breakdown.
type RecallMemory struct {
	Memory
	Relevance float64 `json:"relevance"`
	Composite float64 `json:"composite"`
	Tokens    int     `json:"tokens"`
}

// RecallResult is the assembled context.
type RecallResult struct {
	Memories            []RecallMemory `json:"memories"`
	SessionContext      string         `json:"session_context,omitempty"`
	TotalTokensEstimate int            `json:"total_tokens_estimate"`
}

// Recall assembles task-relevant context inside a token budget: hybrid search,
// composite ranking over relevance, importance, strength and recency, then
// greedy packing. At least one memory is returned even when it overflows.
func (e *Engine) Recall(ctx context.Context, query string, opts RecallOptions) (RecallResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "engram.recall",
		attribute.String("query", query))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)

	start := time.Now()

	if opts.K <= 0 {
		opts.K = 10
	}
	if opts.Budget <= 0 {
		opts.Budget = 4000
	}
	if opts.SessionID != "" {
		ctx = tracing.WithSessionID(ctx, opts.SessionID)
	}

	candidates, err := e.SearchHybrid(ctx, query, HybridOptions{K: opts.K, Type: opts.Type})
	if err != nil {
		return RecallResult{}, err
	}

	now := time.Now()
	scored := make([]RecallMemory, 0, len(candidates))
	for _, c := range candidates {
		composite := c.Score * c.Memory.Importance * c.Memory.Strength * recencyBonus(c.Memory.LastAccessedAt, now)
		scored = append(scored, RecallMemory{
			Memory:    c.Memory,
			Relevance: c.Score,
			Composite: composite,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Composite > scored[j].Composite
	})

	var result RecallResult

	if opts.SessionID != "" {
		session, ok, err := e.GetSession(ctx, opts.SessionID)
		if err != nil {
			return RecallResult{}, err
		}
		if ok && session.Summary != "" {
			result.SessionContext = session.Summary
			result.TotalTokensEstimate += estimateTokens(session.Summary)
		}
	}

	for _, m := range scored {
		tokens := estimateTokens(renderMemory(m.Memory))
		if len(result.Memories) > 0 && result.TotalTokensEstimate+tokens > opts.Budget {
			break
		}
		m.Tokens = tokens
		result.Memories = append(result.Memories, m)
		result.TotalTokensEstimate += tokens
	}

	// Best-effort: recall counts as access for everything it returns.
	for _, m := range result.Memories {
		if err := e.LogAccess(ctx, m.ID, opts.SessionID, query, m.Composite); err != nil {
			logger.Warn().Err(err).Int64("id", m.ID).Msg("Access log write failed")
		}
	}

	observability.RecordRecall(time.Since(start), result.TotalTokensEstimate)
	return result, nil
}

// recencyBonus rewards recently accessed memories and floors at 0.1.
// Never-accessed memories sit at the neutral 0.5.
func recencyBonus(lastAccessed *time.Time, now time.Time) float64 {
	if lastAccessed == nil {
		return 0.5
	}
	days := now.Sub(*lastAccessed).Hours() / 24
	return math.Max(0.1, 1.0-0.1*days)
}

// estimateTokens approximates the token count of rendered text.
func estimateTokens(s string) int {
	return int(math.Ceil(float64(len(s)) / 3.5))
}

func renderMemory(m Memory) string {
	return fmt.Sprintf("[%s] %s\n%s", m.Type, m.Title, m.Content)
}

// RenderRecall formats a recall result as the fixed Markdown layout consumed
// by agents.
func RenderRecall(r RecallResult) string {
	var b strings.Builder

	if r.SessionContext != "" {
		b.WriteString("## Session Context\n\n")
		b.WriteString(r.SessionContext)
		b.WriteString("\n\n")
	}

	b.WriteString("## Relevant Memories\n\n")
	for _, m := range r.Memories {
		fmt.Fprintf(&b, "### [%s] %s\n\n%s\n\n", m.Type, m.Title, m.Content)
	}

	fmt.Fprintf(&b, "_%d memories | ~%d tokens_\n", len(r.Memories), r.TotalTokensEstimate)
	return b.String()
}
