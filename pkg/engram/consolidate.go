package engram

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/foramoment/engram-ai-memory/internal/observability"
	"github.com/foramoment/engram-ai-memory/internal/tracing"
	"github.com/foramoment/engram-ai-memory/pkg/embed"
)

const lastConsolidationKey = "last_consolidation_at"

// ConsolidationOptions tunes a sleep cycle.
type ConsolidationOptions struct {
	DecayRate      float64 // per-day strength multiplier, default 0.95
	PruneThreshold float64 // archive below this strength, default 0.05
	MergeThreshold float64 // near-duplicate similarity floor, default 0.92
	BoostFactor    float64 // reinforcement multiplier, default 1.1
	BoostMinAccess int     // boost memories accessed at least this often, default 3
	DryRun         bool
}

func (o *ConsolidationOptions) setDefaults() {
	if o.DecayRate == 0 {
		o.DecayRate = 0.95
	}
	if o.PruneThreshold == 0 {
		o.PruneThreshold = 0.05
	}
	if o.MergeThreshold == 0 {
		o.MergeThreshold = 0.92
	}
	if o.BoostFactor == 0 {
		o.BoostFactor = 1.1
	}
	if o.BoostMinAccess == 0 {
		o.BoostMinAccess = 3
	}
}

// ConsolidationReport summarizes what a sleep cycle did.
type ConsolidationReport struct {
	Decayed   int           `json:"decayed"`
	Pruned    int           `json:"pruned"`
	Merged    int           `json:"merged"`
	Extracted int           `json:"extracted"`
	Boosted   int           `json:"boosted"`
	DryRun    bool          `json:"dry_run"`
	Elapsed   time.Duration `json:"elapsed"`
}

// notPermanentClause excludes memories carrying the permanent tag.
const notPermanentClause = `id NOT IN (
	SELECT mt.memory_id FROM memory_tags mt
	JOIN tags t ON t.id = mt.tag_id
	WHERE t.name = '` + PermanentTag + `'
)`

// RunConsolidation executes the sleep cycle: decay, prune, merge, extract,
// boost. Decay integrates from the last run's timestamp, so running twice in
// sequence is idempotent; any step failure aborts before that timestamp is
// advanced.
func (e *Engine) RunConsolidation(ctx context.Context, opts ConsolidationOptions) (ConsolidationReport, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "engram.consolidate",
		attribute.Bool("dry_run", opts.DryRun))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)

	opts.setDefaults()
	start := time.Now()
	report := ConsolidationReport{DryRun: opts.DryRun}

	lastRun, err := e.lastConsolidation()
	if err != nil {
		return report, fmt.Errorf("%w: read last run: %v", ErrConsolidationInternal, err)
	}

	if report.Decayed, err = e.decayStep(ctx, opts, lastRun); err != nil {
		return report, fmt.Errorf("%w: decay: %v", ErrConsolidationInternal, err)
	}
	if report.Pruned, err = e.pruneStep(ctx, opts); err != nil {
		return report, fmt.Errorf("%w: prune: %v", ErrConsolidationInternal, err)
	}
	if report.Merged, err = e.mergeStep(ctx, opts); err != nil {
		return report, fmt.Errorf("%w: merge: %v", ErrConsolidationInternal, err)
	}
	report.Extracted = e.extractStep()
	if report.Boosted, err = e.boostStep(ctx, opts, lastRun); err != nil {
		return report, fmt.Errorf("%w: boost: %v", ErrConsolidationInternal, err)
	}

	if !opts.DryRun {
		if err := e.store.SetMeta(lastConsolidationKey, isoNow()); err != nil {
			return report, fmt.Errorf("%w: record run: %v", ErrConsolidationInternal, err)
		}
	}

	report.Elapsed = time.Since(start)
	observability.RecordConsolidation(report.Elapsed)
	observability.RecordConsolidationStep("decay", report.Decayed)
	observability.RecordConsolidationStep("prune", report.Pruned)
	observability.RecordConsolidationStep("merge", report.Merged)
	observability.RecordConsolidationStep("boost", report.Boosted)

	logger.Info().
		Int("decayed", report.Decayed).
		Int("pruned", report.Pruned).
		Int("merged", report.Merged).
		Int("boosted", report.Boosted).
		Bool("dry_run", opts.DryRun).
		Dur("elapsed", report.Elapsed).
		Msg("Consolidation completed")
	return report, nil
}

func (e *Engine) lastConsolidation() (*time.Time, error) {
	v, ok, err := e.store.Meta(lastConsolidationKey)
	if err != nil || !ok || v == "" {
		return nil, err
	}
	t, err := parseISO(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// decayStep multiplies each non-permanent memory's strength by decayRate^days,
// where days counts from the last consolidation (falling back to last access,
// then creation). Computed in Go: the SQLite build carries no pow().
func (e *Engine) decayStep(ctx context.Context, opts ConsolidationOptions, lastRun *time.Time) (int, error) {
	rows, err := e.store.db.QueryContext(ctx, `
		SELECT id, strength, last_accessed_at, created_at
		FROM memories
		WHERE archived = 0 AND `+notPermanentClause)
	if err != nil {
		return 0, err
	}

	type decayRow struct {
		id       int64
		strength float64
	}
	now := time.Now()
	var updates []decayRow
	for rows.Next() {
		var id int64
		var strength float64
		var lastAccessed *string
		var created string
		if err := rows.Scan(&id, &strength, &lastAccessed, &created); err != nil {
			rows.Close()
			return 0, err
		}

		base := now
		switch {
		case lastRun != nil:
			base = *lastRun
		case lastAccessed != nil:
			if t, err := parseISO(*lastAccessed); err == nil {
				base = t
			}
		default:
			if t, err := parseISO(created); err == nil {
				base = t
			}
		}

		days := math.Max(0, now.Sub(base).Hours()/24)
		factor := math.Pow(opts.DecayRate, days)
		next := math.Max(0, math.Min(1, strength*factor))
		if next != strength {
			updates = append(updates, decayRow{id: id, strength: next})
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	if opts.DryRun {
		return len(updates), nil
	}

	tx, err := e.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET strength = ? WHERE id = ?`, u.strength, u.id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(updates), nil
}

// pruneStep archives non-permanent memories whose strength fell below the
// threshold.
func (e *Engine) pruneStep(ctx context.Context, opts ConsolidationOptions) (int, error) {
	if opts.DryRun {
		var n int
		err := e.store.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM memories
			WHERE archived = 0 AND strength < ? AND `+notPermanentClause,
			opts.PruneThreshold).Scan(&n)
		return n, err
	}

	res, err := e.store.db.ExecContext(ctx, `
		UPDATE memories SET archived = 1, updated_at = ?
		WHERE archived = 0 AND strength < ? AND `+notPermanentClause,
		isoNow(), opts.PruneThreshold)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// mergeStep folds semantic near-duplicates of the same type together. Memories
// are visited in ascending id order so symmetric ties resolve deterministically;
// without the vector index the store's exact scan makes this the O(n^2)
// pairwise comparison.
func (e *Engine) mergeStep(ctx context.Context, opts ConsolidationOptions) (int, error) {
	rows, err := e.store.db.QueryContext(ctx,
		`SELECT id FROM memories WHERE archived = 0 ORDER BY id`)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	merged := 0
	archivedInPass := make(map[int64]bool)

	for _, id := range ids {
		if archivedInPass[id] {
			continue
		}
		current, ok, err := e.Get(ctx, id)
		if err != nil {
			return merged, err
		}
		if !ok || current.Archived || current.Embedding == nil {
			continue
		}

		hits, err := e.store.KNN(ctx, current.Embedding, 5, VectorFilter{
			Type: current.Type, ExcludeID: id,
		})
		if err != nil {
			return merged, err
		}

		for _, h := range hits {
			if archivedInPass[h.ID] {
				continue
			}
			if 1.0-h.Distance < opts.MergeThreshold {
				continue
			}
			other, ok, err := e.Get(ctx, h.ID)
			if err != nil {
				return merged, err
			}
			if !ok || other.Archived {
				continue
			}

			keeper, removed := pickKeeper(current, other)
			if opts.DryRun {
				archivedInPass[removed.ID] = true
				merged++
				break
			}
			if err := e.mergePair(ctx, keeper, removed); err != nil {
				return merged, err
			}
			archivedInPass[removed.ID] = true
			merged++
			break
		}
	}
	return merged, nil
}

// pickKeeper prefers the memory with the higher importance + 0.1*access_count
// combined score, breaking ties toward the older (lower) id.
func pickKeeper(a, b Memory) (keeper, removed Memory) {
	scoreA := a.Importance + 0.1*float64(a.AccessCount)
	scoreB := b.Importance + 0.1*float64(b.AccessCount)
	if scoreB > scoreA || (scoreB == scoreA && b.ID < a.ID) {
		return b, a
	}
	return a, b
}

// mergePair folds removed into keeper: content concatenated under a merge
// header, metadata maxed, links rewired to the keeper, removed archived.
func (e *Engine) mergePair(ctx context.Context, keeper, removed Memory) error {
	content := keeper.Content + "\n\n[Merged from: " + removed.Title + "]\n" + removed.Content

	vec, err := e.embedText(ctx, keeper.Title+"\n"+content)
	if err != nil {
		return err
	}

	importance := math.Max(keeper.Importance, removed.Importance)
	strength := math.Max(keeper.Strength, removed.Strength)

	if _, err := e.store.db.ExecContext(ctx, `
		UPDATE memories
		SET content = ?, content_embedding = ?, importance = ?, strength = ?,
		    access_count = access_count + ?, updated_at = ?
		WHERE id = ?
	`, content, embed.VectorToBlob(vec), importance, strength,
		removed.AccessCount, isoNow(), keeper.ID); err != nil {
		return err
	}
	if err := e.store.upsertVector(ctx, keeper.ID, vec); err != nil {
		e.logger.Warn().Err(err).Int64("id", keeper.ID).Msg("Failed to reindex merged embedding")
	}

	// Rewire links pointing at the removed memory, dropping any that would
	// become self-references.
	if _, err := e.store.db.ExecContext(ctx,
		`UPDATE OR REPLACE links SET source_id = ? WHERE source_id = ?`, keeper.ID, removed.ID); err != nil {
		return err
	}
	if _, err := e.store.db.ExecContext(ctx,
		`UPDATE OR REPLACE links SET target_id = ? WHERE target_id = ?`, keeper.ID, removed.ID); err != nil {
		return err
	}
	if _, err := e.store.db.ExecContext(ctx,
		`DELETE FROM links WHERE source_id = target_id`); err != nil {
		return err
	}

	if _, err := e.store.db.ExecContext(ctx,
		`UPDATE memories SET archived = 1, updated_at = ? WHERE id = ?`, isoNow(), removed.ID); err != nil {
		return err
	}
	return nil
}

// extractStep is reserved for LLM-driven pattern discovery. Stable no-op.
func (e *Engine) extractStep() int {
	return 0
}

// boostStep reinforces frequently accessed memories. Guarded by a one-day
// cooldown since the previous run so repeated sleeps do not compound.
func (e *Engine) boostStep(ctx context.Context, opts ConsolidationOptions, lastRun *time.Time) (int, error) {
	if lastRun != nil && time.Since(*lastRun) < 24*time.Hour {
		return 0, nil
	}

	if opts.DryRun {
		var n int
		err := e.store.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM memories WHERE archived = 0 AND access_count >= ?
		`, opts.BoostMinAccess).Scan(&n)
		return n, err
	}

	res, err := e.store.db.ExecContext(ctx, `
		UPDATE memories SET strength = MIN(1.0, strength * ?)
		WHERE archived = 0 AND access_count >= ?
	`, opts.BoostFactor, opts.BoostMinAccess)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ShouldConsolidate reports whether at least intervalDays have passed since
// the last run. A store that never consolidated always qualifies.
func (e *Engine) ShouldConsolidate(intervalDays int) (bool, error) {
	if intervalDays <= 0 {
		intervalDays = 3
	}
	lastRun, err := e.lastConsolidation()
	if err != nil {
		return false, err
	}
	if lastRun == nil {
		return true, nil
	}
	return time.Since(*lastRun) >= time.Duration(intervalDays)*24*time.Hour, nil
}

// ConsolidationPreview lists the weakest memories and counts would-merge pairs.
type ConsolidationPreview struct {
	Weakest         []Memory `json:"weakest"`
	MergeCandidates int      `json:"merge_candidates"`
}

// Preview reports what a sleep cycle would touch, without mutating anything.
func (e *Engine) Preview(ctx context.Context, opts ConsolidationOptions) (ConsolidationPreview, error) {
	opts.setDefaults()
	opts.DryRun = true

	var preview ConsolidationPreview

	rows, err := e.store.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE archived = 0 ORDER BY strength ASC, id LIMIT 10`)
	if err != nil {
		return preview, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return preview, err
		}
		preview.Weakest = append(preview.Weakest, m)
	}
	if err := rows.Err(); err != nil {
		return preview, err
	}

	preview.MergeCandidates, err = e.mergeStep(ctx, opts)
	return preview, err
}
