package indexing

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docker/local-rag-engine/pkg/fsx"
)

// debounceWindow coalesces bursts of filesystem events (e.g. an editor's
// save-via-rename) into a single re-index per settled file, matching the
// usual editor save storms.
const debounceWindow = 2 * time.Second

// Watcher re-indexes files under a folder as they change on disk, the
// optional live companion to the one-shot IndexFolder run.
type Watcher struct {
	pipeline *Pipeline
	spaceID  string
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
}

// Watch starts watching root (and its subdirectories) for changes, calling
// pipeline.IndexFile on every settled create/write and pipeline.store's
// DeleteByDoc on every remove. Call Close to stop.
func Watch(ctx context.Context, pipeline *Pipeline, root, spaceID string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{pipeline: pipeline, spaceID: spaceID, watcher: fsw, pending: make(map[string]struct{})}
	if err := w.addDirs(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) addDirs(root string) error {
	files, err := fsx.CollectFiles([]string{root}, nil)
	if err != nil {
		return err
	}
	dirs := map[string]struct{}{root: {}}
	for _, f := range files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			slog.Warn("indexing: failed to watch directory", "dir", dir, "error", err)
		}
	}
	return nil
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	flush := func() {
		w.mu.Lock()
		paths := make([]string, 0, len(w.pending))
		for p := range w.pending {
			paths = append(paths, p)
		}
		w.pending = make(map[string]struct{})
		w.mu.Unlock()

		for _, path := range paths {
			w.reindex(ctx, path)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, flush)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("indexing: file watcher error", "error", err)
		}
	}
}

func (w *Watcher) reindex(ctx context.Context, path string) {
	if fileExists(path) {
		if _, err := w.pipeline.IndexFile(ctx, path, w.spaceID); err != nil {
			slog.Error("indexing: failed to re-index changed file", "path", path, "error", err)
		}
		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if err := w.pipeline.store.DeleteByDoc(ctx, absPath); err != nil {
		slog.Error("indexing: failed to remove deleted file's chunks", "path", path, "error", err)
		return
	}
	if err := w.pipeline.textIndex.DeleteByDoc(absPath); err != nil {
		slog.Error("indexing: failed to remove deleted file from lexical index", "path", path, "error", err)
	}
}

func fileExists(path string) bool {
	files, err := fsx.CollectFiles([]string{path}, nil)
	return err == nil && len(files) == 1
}
