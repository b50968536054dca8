package engram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Export is a full dump of the store's logical content.
type Export struct {
	Memories []Memory  `json:"memories"`
	Links    []Link    `json:"links"`
	Sessions []Session `json:"sessions"`
}

// Dump collects every non-archived memory (with tags), all links between
// them, and all sessions.
func (e *Engine) Dump(ctx context.Context, includeArchived bool) (Export, error) {
	var out Export

	memories, err := e.List(ctx, ListOptions{IncludeArchived: includeArchived, Limit: 1 << 30})
	if err != nil {
		return out, err
	}
	for i := range memories {
		tags, err := e.tagsOf(ctx, memories[i].ID)
		if err != nil {
			return out, err
		}
		memories[i].Tags = tags
	}
	out.Memories = memories

	rows, err := e.store.db.QueryContext(ctx, `
		SELECT source_id, target_id, relation, strength, created_at
		FROM links ORDER BY source_id, target_id`)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	out.Links, err = scanLinks(rows)
	if err != nil {
		return out, err
	}

	out.Sessions, err = e.ListSessions(ctx, SessionListOptions{Limit: 1 << 30})
	return out, err
}

// ExportJSON renders a dump as indented JSON.
func ExportJSON(dump Export) ([]byte, error) {
	return json.MarshalIndent(dump, "", "  ")
}

// ExportMarkdown renders a dump as a readable Markdown document grouped by
// memory type.
func ExportMarkdown(dump Export) string {
	var b strings.Builder
	b.WriteString("# Engram Export\n")

	byType := make(map[MemoryType][]Memory)
	for _, m := range dump.Memories {
		byType[m.Type] = append(byType[m.Type], m)
	}

	for _, t := range MemoryTypes {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n", t)
		for _, m := range group {
			fmt.Fprintf(&b, "\n### %s\n\n", m.Title)
			if m.Content != "" {
				b.WriteString(m.Content)
				b.WriteString("\n")
			}
			if len(m.Tags) > 0 {
				fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(m.Tags, ", "))
			}
			fmt.Fprintf(&b, "\n_id %d | importance %.2f | strength %.2f | accessed %d times_\n",
				m.ID, m.Importance, m.Strength, m.AccessCount)
		}
	}

	if len(dump.Links) > 0 {
		b.WriteString("\n## Links\n\n")
		for _, l := range dump.Links {
			fmt.Fprintf(&b, "- %d %s %d (%.2f)\n", l.SourceID, l.Relation, l.TargetID, l.Strength)
		}
	}
	return b.String()
}
