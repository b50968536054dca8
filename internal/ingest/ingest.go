package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

// itemSchema validates a batch before any write is attempted, so malformed
// input is rejected as a whole rather than partially applied.
const itemSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["type", "title"],
		"properties": {
			"type": {
				"type": "string",
				"enum": ["reflex", "episode", "fact", "preference", "decision", "session_summary"]
			},
			"title": {"type": "string", "minLength": 1},
			"content": {"type": "string"},
			"importance": {"type": "number", "minimum": 0, "maximum": 1},
			"tags": {"type": "array", "items": {"type": "string"}},
			"links": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["target_id", "relation"],
					"properties": {
						"target_id": {"type": "integer"},
						"relation": {
							"type": "string",
							"enum": ["related_to", "caused_by", "evolved_from", "contradicts", "supersedes"]
						}
					}
				}
			},
			"source_conversation_id": {"type": "string"},
			"source_type": {"type": "string", "enum": ["manual", "auto", "migration"]},
			"permanent": {"type": "boolean"},
			"no_auto_link": {"type": "boolean"}
		}
	}
}`

// ItemResult is the outcome of one batch item.
type ItemResult struct {
	Index  int              `json:"index"`
	Title  string           `json:"title"`
	Result engram.AddResult `json:"result,omitempty"`
	Err    string           `json:"error,omitempty"`
}

// Report collects per-item outcomes. The batch as a whole succeeds only when
// every item does.
type Report struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// OK reports whether every item succeeded.
func (r Report) OK() bool {
	return r.Failed == 0
}

// Validate checks a JSON batch against the ingest schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(itemSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validate batch: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid batch: %s", errs[0])
		}
		return fmt.Errorf("invalid batch")
	}
	return nil
}

// Bytes validates and ingests a JSON array of add inputs.
func Bytes(ctx context.Context, e *engram.Engine, data []byte, logger zerolog.Logger) (Report, error) {
	if err := Validate(data); err != nil {
		return Report{}, err
	}

	var items []engram.AddInput
	if err := json.Unmarshal(data, &items); err != nil {
		return Report{}, fmt.Errorf("decode batch: %w", err)
	}

	report := Report{Total: len(items)}
	for i, item := range items {
		res, err := e.Add(ctx, item)
		ir := ItemResult{Index: i, Title: item.Title}
		if err != nil {
			ir.Err = err.Error()
			report.Failed++
			logger.Warn().Err(err).Int("index", i).Str("title", item.Title).Msg("Ingest item failed")
		} else {
			ir.Result = res
			report.Succeeded++
		}
		report.Items = append(report.Items, ir)
	}
	return report, nil
}

// File ingests a JSON batch file. The file is removed only when removeFile is
// set and every item succeeded.
func File(ctx context.Context, e *engram.Engine, path string, removeFile bool, logger zerolog.Logger) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read batch file: %w", err)
	}

	report, err := Bytes(ctx, e, data, logger)
	if err != nil {
		return report, err
	}

	if removeFile && report.OK() {
		if err := os.Remove(path); err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Failed to remove ingested file")
		}
	}
	return report, nil
}
