package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

// debounceDelay lets writers finish before a dropped file is read.
const debounceDelay = 300 * time.Millisecond

// Watch ingests every *.json file dropped into dir until ctx is cancelled.
// Successfully ingested files are removed from the drop directory.
func Watch(ctx context.Context, e *engram.Engine, dir string, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Info().Str("dir", dir).Msg("Watching drop directory")

	// Pick up anything already sitting in the directory.
	existing, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err == nil {
		for _, path := range existing {
			ingestDrop(ctx, e, path, logger)
		}
	}

	pending := make(map[string]*time.Timer)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			path := event.Name
			if timer, exists := pending[path]; exists {
				timer.Stop()
			}
			pending[path] = time.AfterFunc(debounceDelay, func() {
				ingestDrop(ctx, e, path, logger)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func ingestDrop(ctx context.Context, e *engram.Engine, path string, logger zerolog.Logger) {
	report, err := File(ctx, e, path, true, logger)
	if err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("Drop ingest failed")
		return
	}
	logger.Info().
		Str("file", path).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("Drop ingested")
}
