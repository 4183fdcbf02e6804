package task

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher surfaces task-tree changes as schedule triggers. It does no
// debouncing of its own; the orchestrator's schedule path already
// coalesces bursts, so every relevant filesystem event is forwarded.
type Watcher struct {
	root   string
	notify func(reason string)
	logger *zap.Logger
}

// NewWatcher creates a watcher over the task tree at root. notify is
// invoked with a schedule reason for every relevant change.
func NewWatcher(root string, notify func(reason string), logger *zap.Logger) *Watcher {
	return &Watcher{root: root, notify: notify, logger: logger}
}

// Run watches until ctx is cancelled. Subdirectories existing at start
// and directories created later are both tracked.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			// New directories need their own watch before files inside
			// them produce events.
			if event.Op.Has(fsnotify.Create) {
				if err := w.addTree(fw, event.Name); err != nil {
					w.logger.Warn("failed to watch new directory",
						zap.String("path", event.Name), zap.Error(err))
				}
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("task tree changed",
				zap.String("path", event.Name), zap.String("op", event.Op.String()))
			w.notify("store-changed")

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// relevant filters out temp files from the store's atomic writes and
// anything that is not a task file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	return strings.HasSuffix(name, ".md") && !strings.HasSuffix(name, ".tmp")
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Raced with a delete; nothing to watch.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return fw.Add(path)
	})
}
