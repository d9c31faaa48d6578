package reconcile

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/sse"
	"github.com/starford/nocel/internal/storage"
	"github.com/starford/nocel/internal/store"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the storage root and keeps file
// records in step with disk until ctx is cancelled.
//
// New directories are added to the watch list as they appear. Removals and
// renames drop the matching record at once and schedule a debounced Sync
// to catch anything the event stream missed (whole session directories
// removed at once, for example).
func Watch(ctx context.Context, db dbx.DBTX, blobs *storage.FS, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := blobs.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	files := store.Files(db)
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if _, err := Sync(ctx, db, blobs, logger, cb); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			key, ok := blobs.Key(ev.Name)
			if !ok || storage.IsDerived(key) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", key),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				info, statErr := blobs.Stat(ctx, key)
				if statErr != nil {
					continue
				}
				changed, err := files.SetSizeByPath(ctx, key, info.Size)
				if err != nil {
					logger.Warn("watcher: resize failed", slog.String("path", key), slog.String("error", err.Error()))
					continue
				}
				if changed {
					logger.Debug("watcher: resized", slog.String("path", key), slog.Int64("size", info.Size))
					notify(cb, sse.FileUpdated, key, 0)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				n, err := files.DeleteByPath(ctx, key)
				if err != nil {
					logger.Warn("watcher: delete failed", slog.String("path", key), slog.String("error", err.Error()))
				} else if n > 0 {
					logger.Debug("watcher: removed", slog.String("path", key))
					notify(cb, sse.FileRemoved, key, 0)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and its subdirectories to the watcher,
// skipping thumbnail caches.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == storage.ThumbDir {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
