package engram

import (
	"context"
	"strings"
)

// NormalizeTag lowercases and trims a tag label.
func NormalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Tag attaches tags to a memory, creating labels as needed. Idempotent on the
// memory-tag join; empty labels are skipped.
func (e *Engine) Tag(ctx context.Context, memoryID int64, names ...string) error {
	for _, name := range names {
		name = NormalizeTag(name)
		if name == "" {
			continue
		}
		if _, err := e.store.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return err
		}
		if _, err := e.store.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO memory_tags (memory_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?
		`, memoryID, name); err != nil {
			return err
		}
	}
	return nil
}

// Untag removes tags from a memory. Unknown tags are ignored.
func (e *Engine) Untag(ctx context.Context, memoryID int64, names ...string) error {
	for _, name := range names {
		name = NormalizeTag(name)
		if name == "" {
			continue
		}
		if _, err := e.store.db.ExecContext(ctx, `
			DELETE FROM memory_tags
			WHERE memory_id = ? AND tag_id IN (SELECT id FROM tags WHERE name = ?)
		`, memoryID, name); err != nil {
			return err
		}
	}
	return nil
}

// tagsOf returns a memory's tags sorted by name.
func (e *Engine) tagsOf(ctx context.Context, memoryID int64) ([]string, error) {
	rows, err := e.store.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN memory_tags mt ON mt.tag_id = t.id
		WHERE mt.memory_id = ?
		ORDER BY t.name
	`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// TagCount pairs a tag with its usage count.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ListTags returns all tags with usage counts, most used first.
func (e *Engine) ListTags(ctx context.Context) ([]TagCount, error) {
	rows, err := e.store.db.QueryContext(ctx, `
		SELECT t.name, COUNT(mt.memory_id)
		FROM tags t
		LEFT JOIN memory_tags mt ON mt.tag_id = t.id
		GROUP BY t.id
		ORDER BY COUNT(mt.memory_id) DESC, t.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// MarkPermanent toggles the permanent tag. Permanent memories are exempt from
// decay and prune.
func (e *Engine) MarkPermanent(ctx context.Context, memoryID int64, permanent bool) error {
	if permanent {
		return e.Tag(ctx, memoryID, PermanentTag)
	}
	return e.Untag(ctx, memoryID, PermanentTag)
}
