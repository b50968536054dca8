package engram

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/foramoment/engram-ai-memory/internal/observability"
	"github.com/foramoment/engram-ai-memory/internal/tracing"
	"github.com/foramoment/engram-ai-memory/pkg/embed"
)

// mergeSeparator joins old and new content when a write merges into an
// existing memory.
const mergeSeparator = "\n\n---\n"

// Add runs the ordered write-path pipeline: exact duplicate check, embed,
// semantic merge-on-write, insert, tags, explicit links, auto-link.
// When the vector index is unavailable the merge and auto-link probes degrade
// to no-ops instead of failing the write.
func (e *Engine) Add(ctx context.Context, in AddInput) (AddResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "engram.add",
		attribute.String("type", string(in.Type)),
		attribute.String("title", in.Title),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)

	start := time.Now()
	result, err := e.add(ctx, logger, in)
	if err != nil {
		observability.RecordWrite("error", time.Since(start))
		return AddResult{}, err
	}
	observability.RecordWrite(string(result.Status), time.Since(start))
	return result, nil
}

func (e *Engine) add(ctx context.Context, logger zerolog.Logger, in AddInput) (AddResult, error) {
	if err := in.validate(); err != nil {
		return AddResult{}, err
	}
	if in.SourceType == "" {
		in.SourceType = SourceManual
	}
	tags := in.Tags
	if in.Permanent {
		tags = append(append([]string(nil), tags...), PermanentTag)
	}

	// 1. Exact duplicate: same type and title, not archived.
	if id, ok, err := e.findExact(ctx, in.Type, in.Title); err != nil {
		return AddResult{}, err
	} else if ok {
		if err := e.bumpAccess(ctx, id); err != nil {
			return AddResult{}, err
		}
		// Incoming tags still apply to the existing memory.
		if err := e.Tag(ctx, id, tags...); err != nil {
			return AddResult{}, err
		}
		logger.Debug().Int64("id", id).Msg("Exact duplicate, access bumped")
		return AddResult{ID: id, Status: StatusDuplicate}, nil
	}

	// 2. Embed title and content together.
	vec, err := e.embedText(ctx, in.Title+"\n"+in.Content)
	if err != nil {
		return AddResult{}, err
	}

	// 3. Semantic near-duplicate within the same type merges instead of inserting.
	if neighbour, sim, ok := e.probeMerge(ctx, logger, vec, in.Type, 0); ok && sim >= e.opts.MergeThreshold {
		id, err := e.mergeIntoExisting(ctx, logger, neighbour, in, tags)
		if err != nil {
			return AddResult{}, err
		}
		return AddResult{ID: id, Status: StatusMerged, MergedInto: id}, nil
	}

	// 4. Insert.
	importance := 0.5
	if in.Importance != nil {
		importance = *in.Importance
	}
	now := isoNow()
	var sourceConv interface{}
	if in.SourceConversationID != "" {
		sourceConv = in.SourceConversationID
	}

	res, err := e.store.db.ExecContext(ctx, `
		INSERT INTO memories
			(type, title, content, content_embedding, importance, strength,
			 access_count, created_at, updated_at, source_conversation_id, source_type, archived)
		VALUES (?, ?, ?, ?, ?, 1.0, 0, ?, ?, ?, ?, 0)
	`, string(in.Type), in.Title, in.Content, embed.VectorToBlob(vec),
		importance, now, now, sourceConv, string(in.SourceType))
	if err != nil {
		return AddResult{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return AddResult{}, err
	}

	if err := e.store.upsertVector(ctx, id, vec); err != nil {
		logger.Warn().Err(err).Int64("id", id).Msg("Failed to index embedding")
	}

	// 5. Tags.
	if err := e.Tag(ctx, id, tags...); err != nil {
		return AddResult{}, err
	}

	// 6. Explicit links.
	for _, l := range in.Links {
		if err := e.LinkMemories(ctx, id, l.TargetID, l.Relation, 0.5); err != nil {
			return AddResult{}, err
		}
	}

	// 7. Auto-link to top semantic neighbours.
	if !in.NoAutoLink {
		e.autoLink(ctx, logger, id, vec)
	}

	logger.Debug().Int64("id", id).Str("type", string(in.Type)).Msg("Memory created")
	return AddResult{ID: id, Status: StatusCreated}, nil
}

func (e *Engine) findExact(ctx context.Context, t MemoryType, title string) (int64, bool, error) {
	var id int64
	err := e.store.db.QueryRowContext(ctx, `
		SELECT id FROM memories WHERE type = ? AND title = ? AND archived = 0
		ORDER BY id LIMIT 1
	`, string(t), title).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// bumpAccess increments the access counter and stamps last_accessed_at.
func (e *Engine) bumpAccess(ctx context.Context, id int64) error {
	_, err := e.store.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?
	`, isoNow(), id)
	return err
}

// probeMerge finds the nearest same-type neighbour. Probe failures degrade to
// a miss so the write proceeds as an insert.
func (e *Engine) probeMerge(ctx context.Context, logger zerolog.Logger, vec []float32, t MemoryType, exclude int64) (int64, float64, bool) {
	results, err := e.store.KNN(ctx, vec, 1, VectorFilter{Type: t, ExcludeID: exclude})
	if err != nil {
		logger.Warn().Err(err).Msg("Merge probe unavailable, inserting without merge check")
		return 0, 0, false
	}
	if len(results) == 0 {
		return 0, 0, false
	}
	return results[0].ID, 1.0 - results[0].Distance, true
}

// mergeIntoExisting folds the incoming write into the kept memory: content is
// appended unless already contained, the longer title wins, the merged text is
// re-embedded, and strength gets a 1.1x reinforcement clamped to 1.
func (e *Engine) mergeIntoExisting(ctx context.Context, logger zerolog.Logger, id int64, in AddInput, tags []string) (int64, error) {
	existing, ok, err := e.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, sql.ErrNoRows
	}

	content := existing.Content
	if in.Content != "" && !strings.Contains(content, in.Content) {
		content = content + mergeSeparator + in.Content
	}
	title := existing.Title
	if len(in.Title) > len(title) {
		title = in.Title
	}

	vec, err := e.embedText(ctx, title+"\n"+content)
	if err != nil {
		return 0, err
	}

	strength := math.Min(1.0, existing.Strength*1.1)
	_, err = e.store.db.ExecContext(ctx, `
		UPDATE memories
		SET title = ?, content = ?, content_embedding = ?, strength = ?,
		    access_count = access_count + 1, last_accessed_at = ?, updated_at = ?
		WHERE id = ?
	`, title, content, embed.VectorToBlob(vec), strength, isoNow(), isoNow(), id)
	if err != nil {
		return 0, err
	}

	if err := e.store.upsertVector(ctx, id, vec); err != nil {
		logger.Warn().Err(err).Int64("id", id).Msg("Failed to reindex merged embedding")
	}
	if err := e.Tag(ctx, id, tags...); err != nil {
		return 0, err
	}

	logger.Debug().Int64("id", id).Msg("Write merged into existing memory")
	return id, nil
}

// autoLink creates related_to edges to the closest neighbours above the
// threshold. Best-effort: probe or insert failures never fail the write.
func (e *Engine) autoLink(ctx context.Context, logger zerolog.Logger, id int64, vec []float32) {
	probe := e.opts.MaxAutoLinks + e.opts.AutoLinkBuffer
	results, err := e.store.KNN(ctx, vec, probe, VectorFilter{ExcludeID: id})
	if err != nil {
		logger.Warn().Err(err).Msg("Auto-link probe unavailable")
		return
	}

	linked := 0
	for _, r := range results {
		if linked >= e.opts.MaxAutoLinks {
			break
		}
		sim := 1.0 - r.Distance
		if sim < e.opts.AutoLinkThreshold {
			continue
		}
		strength := math.Round(sim*100) / 100
		if _, err := e.store.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO links (source_id, target_id, relation, strength, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, id, r.ID, string(RelRelatedTo), strength, isoNow()); err != nil {
			logger.Warn().Err(err).Int64("target", r.ID).Msg("Auto-link insert failed")
			continue
		}
		linked++
	}
	if linked > 0 {
		logger.Debug().Int64("id", id).Int("links", linked).Msg("Auto-linked neighbours")
	}
}
