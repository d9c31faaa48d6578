// Package reconcile keeps the files table in step with the blob store: a
// startup pass fixes drift and, for the file-system backend, a watcher
// follows changes made behind the application's back.
package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/sse"
	"github.com/starford/nocel/internal/storage"
	"github.com/starford/nocel/internal/store"
)

// EventCallback is called after a reconciliation changed a file record.
type EventCallback func(sse.Change)

// Result counts what a Sync pass changed.
type Result struct {
	Removed int
	Resized int
	Orphans int
}

// Sync compares every file record with the blob store:
//   - records whose blob is gone are deleted
//   - records whose size differs from the blob are updated
//
// Blobs without a record are counted but left in place.
func Sync(ctx context.Context, db dbx.DBTX, blobs storage.Provider, logger *slog.Logger, cb EventCallback) (Result, error) {
	var res Result
	// Records first: uploads write the blob before the record, so every
	// record read here already has its blob in the listing below.
	files := store.Files(db)
	records, err := files.ListAll(ctx)
	if err != nil {
		return res, err
	}
	infos, err := blobs.List(ctx, "")
	if err != nil {
		return res, err
	}

	disk := make(map[string]storage.Info, len(infos))
	for _, info := range infos {
		if storage.IsDerived(info.Key) {
			continue
		}
		disk[info.Key] = info
	}

	for _, rec := range records {
		info, ok := disk[rec.Path]
		delete(disk, rec.Path)
		switch {
		case !ok:
			if _, err := files.DeleteByPath(ctx, rec.Path); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
				continue
			}
			res.Removed++
			logger.Debug("sync: removed stale", slog.String("path", rec.Path))
			notify(cb, sse.FileRemoved, rec.Path, rec.ID)

		case info.Size != rec.Size:
			if _, err := files.SetSizeByPath(ctx, rec.Path, info.Size); err != nil {
				logger.Warn("sync: resize failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
				continue
			}
			res.Resized++
			notify(cb, sse.FileUpdated, rec.Path, rec.ID)
		}
	}
	res.Orphans = len(disk)
	return res, nil
}

// changeFor maps a blob key "<type>/<session>/<file>" to a change event.
func changeFor(kind, key string, id int64) (sse.Change, bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 {
		return sse.Change{}, false
	}
	return sse.Change{Kind: kind, SessionType: parts[0], Session: parts[1], ID: id}, true
}

func notify(cb EventCallback, kind, key string, id int64) {
	if cb == nil {
		return
	}
	if c, ok := changeFor(kind, key, id); ok {
		cb(c)
	}
}
