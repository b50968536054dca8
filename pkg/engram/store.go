package engram

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/foramoment/engram-ai-memory/pkg/embed"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

const schemaVersion = 1

// Store owns the database file: schema, migrations, and the typed query
// primitives the engine is built on. The FTS index is kept in sync with the
// memories table by triggers; the vector index is maintained by the store's
// write helpers, degrading to an exact scan when the index cannot be built.
type Store struct {
	db         *sql.DB
	logger     zerolog.Logger
	dimension  int
	bruteForce bool
}

// StoreConfig holds store open parameters.
type StoreConfig struct {
	Path      string
	Dimension int
	Logger    zerolog.Logger
}

// OpenStore opens (creating if needed) the database at cfg.Path and runs
// migrations. Vector index creation is attempted; on failure the store flips
// into brute-force mode instead of failing.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: database path is required", ErrInvalidArgument)
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = embed.EncoderDimension
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create data directory: %v", ErrStorageUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_fts5=1&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorageUnavailable, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL mode: %v", ErrStorageUnavailable, err)
	}

	s := &Store{
		db:        db,
		logger:    cfg.Logger,
		dimension: cfg.Dimension,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorageUnavailable, err)
	}

	if err := s.createVectorIndex(); err != nil {
		s.bruteForce = true
		s.logger.Warn().Err(err).Msg("Vector index unavailable, falling back to exact scan")
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BruteForce reports whether vector search runs as an exact scan.
func (s *Store) BruteForce() bool {
	return s.bruteForce
}

// Dimension is the embedding width enforced by this store.
func (s *Store) Dimension() int {
	return s.dimension
}

// runMigrations applies versioned migrations. It is idempotent and records the
// resulting schema_version in system_meta.
func (s *Store) runMigrations() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS system_meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		);
	`); err != nil {
		return err
	}

	current := 0
	var v string
	err := s.db.QueryRow(`SELECT value FROM system_meta WHERE key = 'schema_version'`).Scan(&v)
	if err == nil {
		fmt.Sscanf(v, "%d", &current)
	} else if err != sql.ErrNoRows {
		return err
	}

	if current < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	now := isoNow()
	if _, err := s.db.Exec(`
		INSERT INTO system_meta (key, value) VALUES ('schema_version', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value;
	`, fmt.Sprintf("%d", schemaVersion)); err != nil {
		return err
	}
	if _, err := s.db.Exec(`
		INSERT INTO system_meta (key, value) VALUES ('created_at', ?)
			ON CONFLICT(key) DO NOTHING;
	`, now); err != nil {
		return err
	}
	return nil
}

func (s *Store) migrateV1() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL CHECK (type IN ('reflex','episode','fact','preference','decision','session_summary')),
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			content_embedding BLOB,
			importance REAL NOT NULL DEFAULT 0.5 CHECK (importance >= 0.0 AND importance <= 1.0),
			strength REAL NOT NULL DEFAULT 1.0 CHECK (strength >= 0.0 AND strength <= 1.0),
			access_count INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
			last_accessed_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			source_conversation_id TEXT,
			source_type TEXT NOT NULL DEFAULT 'manual' CHECK (source_type IN ('manual','auto','migration')),
			archived INTEGER NOT NULL DEFAULT 0 CHECK (archived IN (0,1))
		);
		CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
		CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(archived);
		CREATE INDEX IF NOT EXISTS idx_memories_title ON memories(type, title);

		CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS memory_tags (
			memory_id INTEGER NOT NULL,
			tag_id INTEGER NOT NULL,
			PRIMARY KEY (memory_id, tag_id),
			FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE,
			FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS links (
			source_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			relation TEXT NOT NULL CHECK (relation IN ('related_to','caused_by','evolved_from','contradicts','supersedes')),
			strength REAL NOT NULL DEFAULT 0.5,
			created_at TEXT NOT NULL,
			PRIMARY KEY (source_id, target_id),
			FOREIGN KEY (source_id) REFERENCES memories(id) ON DELETE CASCADE,
			FOREIGN KEY (target_id) REFERENCES memories(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT,
			summary TEXT,
			summary_embedding BLOB,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);

		CREATE TABLE IF NOT EXISTS access_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id INTEGER NOT NULL,
			session_id TEXT,
			query TEXT,
			relevance_score REAL,
			accessed_at TEXT NOT NULL,
			FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_access_session ON access_log(session_id, accessed_at);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			title,
			content,
			type,
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts (rowid, title, content, type)
			VALUES (new.id, new.title, new.content, new.type);
		END;

		CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			DELETE FROM memories_fts WHERE rowid = old.id;
		END;

		CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			DELETE FROM memories_fts WHERE rowid = old.id;
			INSERT INTO memories_fts (rowid, title, content, type)
			VALUES (new.id, new.title, new.content, new.type);
		END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// createVectorIndex builds the vec0 virtual table over content embeddings.
func (s *Store) createVectorIndex() error {
	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memories_vec_idx USING vec0(
			memory_id INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.dimension))
	return err
}

// KNNResult is one nearest-neighbour hit; distance is cosine distance in [0,2].
type KNNResult struct {
	ID       int64
	Distance float64
}

// VectorFilter restricts a kNN probe.
type VectorFilter struct {
	Type            MemoryType // empty means any
	ExcludeID       int64      // 0 means none
	IncludeArchived bool
}

// KNN returns the k nearest memories to vec by cosine distance. With the vec0
// index the probe is approximate-index-backed; without it the store runs an
// exact scan over stored embedding blobs and returns the same shape.
func (s *Store) KNN(ctx context.Context, vec []float32, k int, f VectorFilter) ([]KNNResult, error) {
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store uses %d", ErrInvalidArgument, len(vec), s.dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	if s.bruteForce {
		return s.knnExact(ctx, vec, k, f)
	}

	results, err := s.knnIndexed(ctx, vec, k, f)
	if err != nil {
		// The index exists but the probe failed; fall back to the exact scan.
		s.logger.Warn().Err(err).Msg("Vector index probe failed, using exact scan")
		return s.knnExact(ctx, vec, k, f)
	}
	return results, nil
}

func (s *Store) knnIndexed(ctx context.Context, vec []float32, k int, f VectorFilter) ([]KNNResult, error) {
	vecJSON, err := json.Marshal(vec)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT v.memory_id, v.distance
		FROM memories_vec_idx v
		WHERE v.embedding MATCH ? AND k = ?
		  AND v.memory_id IN (SELECT id FROM memories WHERE 1=1`
	args := []interface{}{string(vecJSON), k}
	if !f.IncludeArchived {
		query += ` AND archived = 0`
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.ExcludeID != 0 {
		query += ` AND id != ?`
		args = append(args, f.ExcludeID)
	}
	query += `)
		ORDER BY v.distance ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KNNResult
	for rows.Next() {
		var r KNNResult
		if err := rows.Scan(&r.ID, &r.Distance); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// knnExact is the brute-force path: load every candidate embedding and rank by
// exact cosine distance in Go.
func (s *Store) knnExact(ctx context.Context, vec []float32, k int, f VectorFilter) ([]KNNResult, error) {
	query := `SELECT id, content_embedding FROM memories WHERE content_embedding IS NOT NULL`
	var args []interface{}
	if !f.IncludeArchived {
		query += ` AND archived = 0`
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.ExcludeID != 0 {
		query += ` AND id != ?`
		args = append(args, f.ExcludeID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KNNResult
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		candidate, err := embed.BlobToVector(blob)
		if err != nil || len(candidate) != len(vec) {
			continue
		}
		sim, err := embed.Cosine(vec, candidate)
		if err != nil {
			continue
		}
		results = append(results, KNNResult{ID: id, Distance: 1.0 - sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortKNN(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// upsertVector writes a memory's embedding into the vector index. No-op in
// brute-force mode, where the blob column is the only copy.
func (s *Store) upsertVector(ctx context.Context, id int64, vec []float32) error {
	if s.bruteForce {
		return nil
	}
	vecJSON, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories_vec_idx (memory_id, embedding) VALUES (?, ?)
	`, id, string(vecJSON))
	return err
}

// deleteVector removes a memory from the vector index.
func (s *Store) deleteVector(ctx context.Context, id int64) error {
	if s.bruteForce {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories_vec_idx WHERE memory_id = ?`, id)
	return err
}

// FTSResult is one lexical hit; score is the positive BM25 relevance.
type FTSResult struct {
	ID   int64
	BM25 float64
}

// SearchFilter restricts a lexical search.
type SearchFilter struct {
	Type  MemoryType
	Since *time.Time
}

// FTS runs a BM25-ranked lexical match over title, content, and type.
// Archived memories never match.
func (s *Store) FTS(ctx context.Context, match string, k int, f SearchFilter) ([]FTSResult, error) {
	query := `
		SELECT memories_fts.rowid, bm25(memories_fts) AS score
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.archived = 0`
	args := []interface{}{match}
	if f.Type != "" {
		query += ` AND m.type = ?`
		args = append(args, string(f.Type))
	}
	if f.Since != nil {
		query += ` AND m.created_at >= ?`
		args = append(args, isoTime(*f.Since))
	}
	query += ` ORDER BY score LIMIT ?`
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FTSResult
	for rows.Next() {
		var r FTSResult
		var score float64
		if err := rows.Scan(&r.ID, &score); err != nil {
			return nil, err
		}
		// BM25 scores are negative, convert to positive
		r.BM25 = -score
		results = append(results, r)
	}
	return results, rows.Err()
}

// Meta reads a system_meta value; ok is false when the key is absent or null.
func (s *Store) Meta(key string) (string, bool, error) {
	var v sql.NullString
	err := s.db.QueryRow(`SELECT value FROM system_meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, v.Valid, nil
}

// SetMeta writes a system_meta value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO system_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func sortKNN(results []KNNResult) {
	// Stable so equal-distance neighbours keep scan (ascending id) order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
}

const isoFormat = "2006-01-02T15:04:05.000Z"

func isoNow() string {
	return isoTime(time.Now())
}

func isoTime(t time.Time) string {
	return t.UTC().Format(isoFormat)
}

func parseISO(v string) (time.Time, error) {
	t, err := time.Parse(isoFormat, v)
	if err != nil {
		// Tolerate second-precision rows written by older builds.
		t, err = time.Parse(time.RFC3339, v)
	}
	return t, err
}
