package upload

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settleDelay gives writers time to finish before a dropped file is read.
const settleDelay = 150 * time.Millisecond

// Watcher turns a directory into a drop target: files created or moved
// into it are loaded, filtered and handed to the callback.
type Watcher struct {
	dir    string
	onDrop func([]Image)
	log    *zap.Logger
}

// NewWatcher creates a drop-folder watcher. onDrop is called from the
// watcher goroutine and only with non-empty, accepted batches.
func NewWatcher(dir string, onDrop func([]Image), log *zap.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("upload: watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("upload: watch %s: not a directory", dir)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{dir: dir, onDrop: onDrop, log: log}, nil
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("upload: new watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("upload: watch %s: %w", w.dir, err)
	}
	w.log.Debug("drop folder watching", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.handle(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("drop folder error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(settleDelay):
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		// Renamed away or a subdirectory.
		return
	}
	img, err := LoadFile(path)
	if err != nil {
		w.log.Debug("drop folder read failed", zap.String("path", path), zap.Error(err))
		return
	}
	if batch := Filter([]Image{img}); len(batch) > 0 {
		w.onDrop(batch)
	}
}
