package crisis

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the freshly loaded keyword set and exemplar
// phrases after a file change.
type ReloadFunc func(set *KeywordSet, exemplars []string)

// Watcher hot-reloads the keyword/exemplar file on change. The parent
// directory is watched because editors typically replace the file
// (rename + create) rather than write in place.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload ReloadFunc
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the given keyword file.
func NewWatcher(path string, onReload ReloadFunc, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		watcher:  fsw,
		onReload: onReload,
		logger:   logger,
	}, nil
}

// Start watches for changes until the context is cancelled.
// Run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("keyword file watcher error", "error", err)
		}
	}
}

// reload loads the file and hands the result to the callback.
// A broken file keeps the previous snapshot in place.
func (w *Watcher) reload() {
	set, exemplars, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("keyword file reload failed, keeping previous set",
			"path", w.path, "error", err)
		return
	}
	w.logger.Info("keyword file reloaded",
		"path", w.path, "version", set.Version(), "keywords", set.Len())
	w.onReload(set, exemplars)
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
