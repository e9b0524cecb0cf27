package world

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the world file at path whenever it is written or recreated and passes the
// result to onChange on the watcher goroutine. The parent directory is watched so editors that
// replace the file are seen; bursts of events within debounce collapse into one reload.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(Snapshot, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer w.Close()
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			fire = time.After(debounce)
		case <-fire:
			fire = nil
			onChange(LoadSnapshot(path))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onChange(Snapshot{}, err)
		}
	}
}
