package engram

import (
	"context"
	"time"

	"github.com/foramoment/engram-ai-memory/internal/observability"
)

// Stats is the read-only telemetry surface.
type Stats struct {
	TotalMemories     int                `json:"total_memories"`
	ArchivedMemories  int                `json:"archived_memories"`
	ByType            map[MemoryType]int `json:"by_type"`
	TotalLinks        int                `json:"total_links"`
	TotalTags         int                `json:"total_tags"`
	TotalSessions     int                `json:"total_sessions"`
	AvgImportance     float64            `json:"avg_importance"`
	AvgStrength       float64            `json:"avg_strength"`
	BruteForceVectors bool               `json:"brute_force_vectors"`
	LastConsolidation *time.Time         `json:"last_consolidation,omitempty"`
}

// CollectStats gathers counts and averages over the live store.
func (e *Engine) CollectStats(ctx context.Context) (Stats, error) {
	s := Stats{
		ByType:            make(map[MemoryType]int),
		BruteForceVectors: e.store.BruteForce(),
	}

	rows, err := e.store.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM memories WHERE archived = 0 GROUP BY type`)
	if err != nil {
		return s, err
	}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return s, err
		}
		s.ByType[MemoryType(t)] = n
		s.TotalMemories += n
	}
	if err := rows.Close(); err != nil {
		return s, err
	}

	if err := e.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE archived = 1`).Scan(&s.ArchivedMemories); err != nil {
		return s, err
	}
	if err := e.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM links`).Scan(&s.TotalLinks); err != nil {
		return s, err
	}
	if err := e.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tags`).Scan(&s.TotalTags); err != nil {
		return s, err
	}
	if err := e.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions`).Scan(&s.TotalSessions); err != nil {
		return s, err
	}
	if s.TotalMemories > 0 {
		if err := e.store.db.QueryRowContext(ctx,
			`SELECT AVG(importance), AVG(strength) FROM memories WHERE archived = 0`,
		).Scan(&s.AvgImportance, &s.AvgStrength); err != nil {
			return s, err
		}
	}

	s.LastConsolidation, err = e.lastConsolidation()
	if err != nil {
		return s, err
	}

	observability.SetMemoryCounts(s.TotalMemories, s.ArchivedMemories)
	return s, nil
}

// DuplicatePair is a near-duplicate report entry from diagnostics.
type DuplicatePair struct {
	A          Memory  `json:"a"`
	B          Memory  `json:"b"`
	Similarity float64 `json:"similarity"`
}

// FindDuplicates reports same-type pairs whose similarity exceeds threshold,
// for the diagnostics surface. Archived memories are skipped.
func (e *Engine) FindDuplicates(ctx context.Context, threshold float64, limit int) ([]DuplicatePair, error) {
	if threshold <= 0 {
		threshold = 0.85
	}
	if limit <= 0 {
		limit = 20
	}

	memories, err := e.List(ctx, ListOptions{Limit: 1 << 30})
	if err != nil {
		return nil, err
	}

	var pairs []DuplicatePair
	for _, m := range memories {
		if m.Embedding == nil {
			continue
		}
		hits, err := e.store.KNN(ctx, m.Embedding, 5, VectorFilter{Type: m.Type, ExcludeID: m.ID})
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			// Report each unordered pair once, from its lower id.
			if h.ID < m.ID {
				continue
			}
			sim := 1.0 - h.Distance
			if sim < threshold {
				continue
			}
			other, ok, err := e.Get(ctx, h.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			pairs = append(pairs, DuplicatePair{A: m, B: other, Similarity: sim})
			if len(pairs) >= limit {
				return pairs, nil
			}
		}
	}
	return pairs, nil
}
