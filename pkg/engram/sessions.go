package engram

import (
	"context"
	"database/sql"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/foramoment/engram-ai-memory/pkg/embed"
)

// StartSession creates or replaces a session row. An empty id gets a generated
// one; the returned session carries the id actually used.
func (e *Engine) StartSession(ctx context.Context, id, title string) (Session, error) {
	if id == "" {
		generated, err := gonanoid.New()
		if err != nil {
			return Session{}, err
		}
		id = generated
	}

	now := time.Now().UTC()
	var titleArg interface{}
	if title != "" {
		titleArg = title
	}
	_, err := e.store.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, title, started_at) VALUES (?, ?, ?)
	`, id, titleArg, isoTime(now))
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, Title: title, StartedAt: now}, nil
}

// EndSession stamps ended_at and, when a summary is given, embeds and stores
// it. Returns false when the session does not exist.
func (e *Engine) EndSession(ctx context.Context, id, summary string) (bool, error) {
	_, ok, err := e.GetSession(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	if summary != "" {
		vec, err := e.embedText(ctx, summary)
		if err != nil {
			return false, err
		}
		_, err = e.store.db.ExecContext(ctx, `
			UPDATE sessions SET ended_at = ?, summary = ?, summary_embedding = ? WHERE id = ?
		`, isoNow(), summary, embed.VectorToBlob(vec), id)
		return err == nil, err
	}

	_, err = e.store.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, isoNow(), id)
	return err == nil, err
}

// GetSession returns a session row; ok is false when the id is unknown.
func (e *Engine) GetSession(ctx context.Context, id string) (Session, bool, error) {
	row := e.store.db.QueryRowContext(ctx, `
		SELECT id, title, summary, summary_embedding, started_at, ended_at
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

// SessionContext returns the session plus the distinct memories accessed under
// it, most recently accessed first.
func (e *Engine) SessionContext(ctx context.Context, id string) (Session, []Memory, error) {
	session, ok, err := e.GetSession(ctx, id)
	if err != nil {
		return Session{}, nil, err
	}
	if !ok {
		return Session{}, nil, nil
	}

	rows, err := e.store.db.QueryContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE id IN (SELECT memory_id FROM access_log WHERE session_id = ?)
		ORDER BY (SELECT MAX(accessed_at) FROM access_log a WHERE a.memory_id = memories.id AND a.session_id = ?) DESC
	`, id, id)
	if err != nil {
		return Session{}, nil, err
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return Session{}, nil, err
		}
		memories = append(memories, m)
	}
	return session, memories, rows.Err()
}

// SessionListOptions filters ListSessions.
type SessionListOptions struct {
	Since *time.Time
	Until *time.Time
	Limit int
}

// ListSessions returns sessions most recently started first.
func (e *Engine) ListSessions(ctx context.Context, opts SessionListOptions) ([]Session, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	query := `
		SELECT id, title, summary, summary_embedding, started_at, ended_at
		FROM sessions WHERE 1=1`
	var args []interface{}
	if opts.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, isoTime(*opts.Since))
	}
	if opts.Until != nil {
		query += ` AND started_at <= ?`
		args = append(args, isoTime(*opts.Until))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := e.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LogAccess appends to the access log and atomically bumps the memory's
// access counter and last-accessed timestamp.
func (e *Engine) LogAccess(ctx context.Context, memoryID int64, sessionID, query string, score float64) error {
	tx, err := e.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var sessionArg, queryArg, scoreArg interface{}
	if sessionID != "" {
		sessionArg = sessionID
	}
	if query != "" {
		queryArg = query
	}
	if score != 0 {
		scoreArg = score
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO access_log (memory_id, session_id, query, relevance_score, accessed_at)
		VALUES (?, ?, ?, ?, ?)
	`, memoryID, sessionArg, queryArg, scoreArg, isoNow()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?
	`, isoNow(), memoryID); err != nil {
		return err
	}
	return tx.Commit()
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var title, summary, started sql.NullString
	var ended sql.NullString
	var blob []byte

	if err := row.Scan(&s.ID, &title, &summary, &blob, &started, &ended); err != nil {
		return Session{}, err
	}
	if title.Valid {
		s.Title = title.String
	}
	if summary.Valid {
		s.Summary = summary.String
	}
	if len(blob) > 0 {
		if vec, err := embed.BlobToVector(blob); err == nil {
			s.SummaryEmbedding = vec
		}
	}
	if started.Valid {
		if t, err := parseISO(started.String); err == nil {
			s.StartedAt = t
		}
	}
	if ended.Valid {
		if t, err := parseISO(ended.String); err == nil {
			s.EndedAt = &t
		}
	}
	return s, nil
}
