package redflag

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/clinisights/dx-core/pkg/logger"
)

// Watch hot-reloads the lexicon file on write events until ctx is
// cancelled. Runs on its own goroutine; reload failures keep the
// previous lexicon active.
func Watch(ctx context.Context, path string, d *Detector, log logger.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create lexicon watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch lexicon file: %w", err)
	}

	go func() {
		defer watcher.Close()
		log.Info("Red-flag lexicon watcher started", "path", path)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write != fsnotify.Write {
					continue
				}
				entries, err := LoadLexicon(path)
				if err != nil {
					log.Warn("Lexicon reload failed; keeping previous lexicon", "error", err)
					continue
				}
				if err := d.Reload(entries); err != nil {
					log.Warn("Lexicon recompile failed; keeping previous lexicon", "error", err)
					continue
				}
				log.Info("Red-flag lexicon reloaded", "entries", len(entries))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Lexicon watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
