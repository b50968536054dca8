package engram

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/foramoment/engram-ai-memory/internal/observability"
	"github.com/foramoment/engram-ai-memory/pkg/embed"
)

const tracerName = "engram.core"

// Options tunes the write path and retrieval funnel.
type Options struct {
	MergeThreshold    float64 // semantic near-duplicate merge, default 0.92
	AutoLinkThreshold float64 // auto-link similarity floor, default 0.7
	MaxAutoLinks      int     // default 3
	AutoLinkBuffer    int     // extra neighbours probed past MaxAutoLinks, default 5
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		MergeThreshold:    0.92,
		AutoLinkThreshold: 0.7,
		MaxAutoLinks:      3,
		AutoLinkBuffer:    5,
	}
}

// Engine is the memory core: CRUD, the write-path pipeline, search, recall,
// sessions, and consolidation, all over one shared store handle.
type Engine struct {
	store  *Store
	svc    *embed.Service
	logger zerolog.Logger
	opts   Options
}

// New creates an engine over an open store and embedding service.
func New(store *Store, svc *embed.Service, logger zerolog.Logger, opts Options) *Engine {
	observability.EnsureRegistered()

	if opts.MergeThreshold == 0 {
		opts.MergeThreshold = 0.92
	}
	if opts.AutoLinkThreshold == 0 {
		opts.AutoLinkThreshold = 0.7
	}
	if opts.MaxAutoLinks == 0 {
		opts.MaxAutoLinks = 3
	}
	if opts.AutoLinkBuffer == 0 {
		opts.AutoLinkBuffer = 5
	}

	return &Engine{
		store:  store,
		svc:    svc,
		logger: logger,
		opts:   opts,
	}
}

// Store exposes the underlying store handle.
func (e *Engine) Store() *Store {
	return e.store
}

// Logger exposes the engine's logger for collaborators that log on its behalf.
func (e *Engine) Logger() zerolog.Logger {
	return e.logger
}

// embedText embeds text through the service, consulting the content-hash cache
// first so re-embedding merged or unchanged text is cheap.
func (e *Engine) embedText(ctx context.Context, text string) ([]float32, error) {
	hashBytes := sha256.Sum256([]byte(text))
	hash := hex.EncodeToString(hashBytes[:])

	var cached []byte
	err := e.store.db.QueryRowContext(ctx,
		`SELECT embedding FROM embedding_cache WHERE content_hash = ? AND dimension = ?`,
		hash, e.store.dimension,
	).Scan(&cached)
	if err == nil {
		vec, convErr := embed.BlobToVector(cached)
		if convErr == nil && len(vec) == e.store.dimension {
			return vec, nil
		}
	}

	start := time.Now()
	vec, err := e.svc.Embed(ctx, text)
	observability.RecordEmbedding(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	if len(vec) != e.store.dimension {
		return nil, fmt.Errorf("%w: encoder produced dimension %d, store uses %d",
			ErrEmbeddingFailure, len(vec), e.store.dimension)
	}

	if _, err := e.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embedding_cache (content_hash, embedding, dimension, created_at) VALUES (?, ?, ?, ?)`,
		hash, embed.VectorToBlob(vec), len(vec), time.Now().Unix(),
	); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to cache embedding")
	}

	return vec, nil
}

const memoryColumns = `id, type, title, content, content_embedding, importance, strength,
	access_count, last_accessed_at, created_at, updated_at,
	source_conversation_id, source_type, archived`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (Memory, error) {
	var m Memory
	var blob []byte
	var memType, sourceType string
	var lastAccessed, sourceConv sql.NullString
	var created, updated string
	var archived int

	err := row.Scan(
		&m.ID, &memType, &m.Title, &m.Content, &blob, &m.Importance, &m.Strength,
		&m.AccessCount, &lastAccessed, &created, &updated,
		&sourceConv, &sourceType, &archived,
	)
	if err != nil {
		return Memory{}, err
	}
	m.Type = MemoryType(memType)
	m.SourceType = SourceType(sourceType)

	if len(blob) > 0 {
		if vec, err := embed.BlobToVector(blob); err == nil {
			m.Embedding = vec
		}
	}
	if lastAccessed.Valid {
		if t, err := parseISO(lastAccessed.String); err == nil {
			m.LastAccessedAt = &t
		}
	}
	if t, err := parseISO(created); err == nil {
		m.CreatedAt = t
	}
	if t, err := parseISO(updated); err == nil {
		m.UpdatedAt = t
	}
	if sourceConv.Valid {
		m.SourceConversationID = sourceConv.String
	}
	m.Archived = archived == 1

	return m, nil
}

// Get returns a memory with its tags; ok is false when the id does not exist.
func (e *Engine) Get(ctx context.Context, id int64) (Memory, bool, error) {
	row := e.store.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return Memory{}, false, nil
	}
	if err != nil {
		return Memory{}, false, err
	}

	tags, err := e.tagsOf(ctx, id)
	if err != nil {
		return Memory{}, false, err
	}
	m.Tags = tags
	return m, true, nil
}

// ListOptions filters a listing.
type ListOptions struct {
	Type            MemoryType
	IncludeArchived bool
	Limit           int
	Offset          int
}

// List returns memories, newest first.
func (e *Engine) List(ctx context.Context, opts ListOptions) ([]Memory, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE 1=1`
	var args []interface{}
	if !opts.IncludeArchived {
		query += ` AND archived = 0`
	}
	if opts.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(opts.Type))
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := e.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateInput is a partial patch; nil fields are left unchanged.
type UpdateInput struct {
	Title      *string
	Content    *string
	Importance *float64
	Strength   *float64
}

// Update patches a memory, re-embedding when title or content changes.
// Returns false when the id does not exist.
func (e *Engine) Update(ctx context.Context, id int64, in UpdateInput) (bool, error) {
	if in.Importance != nil && (*in.Importance < 0 || *in.Importance > 1) {
		return false, fmt.Errorf("%w: importance %v out of range [0,1]", ErrInvalidArgument, *in.Importance)
	}
	if in.Strength != nil && (*in.Strength < 0 || *in.Strength > 1) {
		return false, fmt.Errorf("%w: strength %v out of range [0,1]", ErrInvalidArgument, *in.Strength)
	}
	if in.Title != nil && *in.Title == "" {
		return false, fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}

	m, ok, err := e.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	title, content := m.Title, m.Content
	reembed := false
	if in.Title != nil && *in.Title != title {
		title = *in.Title
		reembed = true
	}
	if in.Content != nil && *in.Content != content {
		content = *in.Content
		reembed = true
	}

	importance := m.Importance
	if in.Importance != nil {
		importance = *in.Importance
	}
	strength := m.Strength
	if in.Strength != nil {
		strength = *in.Strength
	}

	var blob interface{}
	var vec []float32
	if reembed {
		vec, err = e.embedText(ctx, title+"\n"+content)
		if err != nil {
			return false, err
		}
		blob = embed.VectorToBlob(vec)
	} else {
		blob = memoryEmbeddingBlob(m)
	}

	_, err = e.store.db.ExecContext(ctx, `
		UPDATE memories
		SET title = ?, content = ?, content_embedding = ?, importance = ?, strength = ?, updated_at = ?
		WHERE id = ?
	`, title, content, blob, importance, strength, isoNow(), id)
	if err != nil {
		return false, err
	}

	if reembed {
		if err := e.store.upsertVector(ctx, id, vec); err != nil {
			e.logger.Warn().Err(err).Int64("id", id).Msg("Failed to update vector index")
		}
	}
	return true, nil
}

// Delete hard-deletes a memory; tag joins, links, and access log rows cascade.
// Returns false when the id does not exist.
func (e *Engine) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := e.store.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if err := e.store.deleteVector(ctx, id); err != nil {
		e.logger.Warn().Err(err).Int64("id", id).Msg("Failed to remove from vector index")
	}
	return true, nil
}

// Archive toggles the archived flag without deleting anything.
func (e *Engine) Archive(ctx context.Context, id int64, archived bool) (bool, error) {
	flag := 0
	if archived {
		flag = 1
	}
	res, err := e.store.db.ExecContext(ctx,
		`UPDATE memories SET archived = ?, updated_at = ? WHERE id = ?`, flag, isoNow(), id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func memoryEmbeddingBlob(m Memory) interface{} {
	if m.Embedding == nil {
		return nil
	}
	return embed.VectorToBlob(m.Embedding)
}
