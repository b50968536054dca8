package engram

import (
	"context"
	"fmt"
)

// LinkMemories inserts or replaces a directed link between two memories.
func (e *Engine) LinkMemories(ctx context.Context, sourceID, targetID int64, relation Relation, strength float64) error {
	if !ValidRelation(relation) {
		return fmt.Errorf("%w: link relation %q", ErrInvalidArgument, relation)
	}
	if sourceID == targetID {
		return fmt.Errorf("%w: a memory cannot link to itself", ErrInvalidArgument)
	}
	_, err := e.store.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO links (source_id, target_id, relation, strength, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sourceID, targetID, string(relation), strength, isoNow())
	return err
}

// Unlink removes a directed link. Unknown pairs are ignored.
func (e *Engine) Unlink(ctx context.Context, sourceID, targetID int64) error {
	_, err := e.store.db.ExecContext(ctx,
		`DELETE FROM links WHERE source_id = ? AND target_id = ?`, sourceID, targetID)
	return err
}

// LinksOf returns all links touching a memory, outgoing and incoming.
func (e *Engine) LinksOf(ctx context.Context, memoryID int64) ([]Link, error) {
	rows, err := e.store.db.QueryContext(ctx, `
		SELECT source_id, target_id, relation, strength, created_at
		FROM links
		WHERE source_id = ? OR target_id = ?
		ORDER BY created_at
	`, memoryID, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLinks(rows)
}

// neighbours returns ids adjacent to id in either direction, excluding archived.
func (e *Engine) neighbours(ctx context.Context, id int64) ([]int64, error) {
	rows, err := e.store.db.QueryContext(ctx, `
		SELECT CASE WHEN l.source_id = ? THEN l.target_id ELSE l.source_id END AS other
		FROM links l
		JOIN memories m ON m.id = (CASE WHEN l.source_id = ? THEN l.target_id ELSE l.source_id END)
		WHERE (l.source_id = ? OR l.target_id = ?) AND m.archived = 0
		ORDER BY other
	`, id, id, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var other int64
		if err := rows.Scan(&other); err != nil {
			return nil, err
		}
		out = append(out, other)
	}
	return out, rows.Err()
}

// Expand walks the link graph breadth-first from seeds, both directions, up to
// hops layers. Returns newly reached ids in visit order; seeds and archived
// memories are skipped.
func (e *Engine) Expand(ctx context.Context, seeds []int64, hops int) ([]int64, error) {
	visited := make(map[int64]bool, len(seeds))
	for _, id := range seeds {
		visited[id] = true
	}

	frontier := append([]int64(nil), seeds...)
	var found []int64

	for layer := 0; layer < hops && len(frontier) > 0; layer++ {
		var next []int64
		for _, id := range frontier {
			neigh, err := e.neighbours(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, n := range neigh {
				if visited[n] {
					continue
				}
				visited[n] = true
				found = append(found, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return found, nil
}

type linkRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanLinks(rows linkRows) ([]Link, error) {
	var out []Link
	for rows.Next() {
		var l Link
		var rel, created string
		if err := rows.Scan(&l.SourceID, &l.TargetID, &rel, &l.Strength, &created); err != nil {
			return nil, err
		}
		l.Relation = Relation(rel)
		if t, err := parseISO(created); err == nil {
			l.CreatedAt = t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
