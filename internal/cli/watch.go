package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchFrames обрабатывает кадры, появляющиеся в dir, до отмены ctx.
// Кадр, который не удалось прочитать, повторяется на следующем событии записи.
func watchFrames(ctx context.Context, dir string, process func(path string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Printf("👀 Watching directory: %s", dir)

	done := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			path := filepath.Clean(event.Name)
			if done[path] || !isFrameFile(path) {
				continue
			}
			if err := process(path); err != nil {
				var fatal *fatalError
				if errors.As(err, &fatal) {
					return fatal.err
				}
				log.Printf("Skipping %s for now: %v", filepath.Base(path), err)
				continue
			}
			done[path] = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("❌ Filesystem watcher error: %v", err)
		}
	}
}

// fatalError прерывает наблюдение за каталогом.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }
