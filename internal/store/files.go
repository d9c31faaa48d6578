package store

import (
	"context"
	"fmt"

	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/models"
)

// FileRepository reads and writes the files table through a DBTX.
type FileRepository struct {
	db dbx.DBTX
}

// Files binds a FileRepository to db.
func Files(db dbx.DBTX) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, session_id, filename, filepath, mimetype, kind, size, created_at`

func scanFile(row interface{ Scan(...any) error }) (*models.File, error) {
	var f models.File
	var kind string
	if err := row.Scan(&f.ID, &f.SessionID, &f.Filename, &f.Path, &f.MimeType, &kind, &f.Size, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Kind = models.Kind(kind)
	return &f, nil
}

// Upsert inserts f or, when (session_id, filename) already exists, replaces
// its path, MIME type, kind and size. f.ID is set either way.
func (r *FileRepository) Upsert(ctx context.Context, f *models.File) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO files (session_id, filename, filepath, mimetype, kind, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, filename) DO UPDATE SET
			filepath = excluded.filepath,
			mimetype = excluded.mimetype,
			kind     = excluded.kind,
			size     = excluded.size
		RETURNING id
	`, f.SessionID, f.Filename, f.Path, f.MimeType, string(f.Kind), f.Size, f.CreatedAt.UTC()).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("store: upsert file: %w", err)
	}
	return nil
}

// Get returns file id if it belongs to sessionID.
func (r *FileRepository) Get(ctx context.Context, sessionID, id int64) (*models.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ? AND session_id = ?`, id, sessionID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("file %d", id))
	}
	return f, nil
}

// GetByName returns the file stored as filename within sessionID.
func (r *FileRepository) GetByName(ctx context.Context, sessionID int64, filename string) (*models.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE session_id = ? AND filename = ?`, sessionID, filename))
	if err != nil {
		return nil, notFound(err, "file "+filename)
	}
	return f, nil
}

// Delete removes file id within sessionID.
func (r *FileRepository) Delete(ctx context.Context, sessionID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ? AND session_id = ?`, id, sessionID)
	if err != nil {
		return fmt.Errorf("store: delete file: %w", err)
	}
	return expectOne(res, fmt.Sprintf("file %d", id))
}

// DeleteByPath removes the record pointing at a storage path and reports
// how many rows went away.
func (r *FileRepository) DeleteByPath(ctx context.Context, path string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE filepath = ?`, path)
	if err != nil {
		return 0, fmt.Errorf("store: delete file by path: %w", err)
	}
	return res.RowsAffected()
}

// SetSizeByPath updates the recorded size of the file at path. It reports
// whether a row changed.
func (r *FileRepository) SetSizeByPath(ctx context.Context, path string, size int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE files SET size = ? WHERE filepath = ? AND size <> ?`, size, path, size)
	if err != nil {
		return false, fmt.Errorf("store: update file size: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListBySession returns the files of a session, oldest first.
func (r *FileRepository) ListBySession(ctx context.Context, sessionID int64) ([]models.File, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files
		WHERE session_id = ? ORDER BY created_at ASC, id ASC`, sessionID)
}

// ListAll returns every file record.
func (r *FileRepository) ListAll(ctx context.Context) ([]models.File, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files ORDER BY id`)
}

func (r *FileRepository) list(ctx context.Context, query string, args ...any) ([]models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list files: %w", err)
	}
	defer rows.Close()

	var out []models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// TotalBytes sums the recorded sizes of a session's files.
func (r *FileRepository) TotalBytes(ctx context.Context, sessionID int64) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM files WHERE session_id = ?`, sessionID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: total bytes: %w", err)
	}
	return total, nil
}
