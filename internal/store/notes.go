package store

import (
	"context"
	"fmt"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/models"
)

// NoteRepository reads and writes the notes table through a DBTX.
type NoteRepository struct {
	db dbx.DBTX
}

// Notes binds a NoteRepository to db.
func Notes(db dbx.DBTX) *NoteRepository {
	return &NoteRepository{db: db}
}

// Insert adds n and sets its ID.
func (r *NoteRepository) Insert(ctx context.Context, n *models.Note) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (session_id, content, created_at) VALUES (?, ?, ?)`,
		n.SessionID, n.Content, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: note id: %w", err)
	}
	n.ID = id
	return nil
}

// Get returns note id if it belongs to sessionID.
func (r *NoteRepository) Get(ctx context.Context, sessionID, id int64) (*models.Note, error) {
	var n models.Note
	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, content, created_at FROM notes WHERE id = ? AND session_id = ?`,
		id, sessionID).Scan(&n.ID, &n.SessionID, &n.Content, &n.CreatedAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("note %d", id))
	}
	return &n, nil
}

// UpdateContent replaces the content of note id within sessionID.
func (r *NoteRepository) UpdateContent(ctx context.Context, sessionID, id int64, content string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notes SET content = ? WHERE id = ? AND session_id = ?`, content, id, sessionID)
	if err != nil {
		return fmt.Errorf("store: update note: %w", err)
	}
	return expectOne(res, fmt.Sprintf("note %d", id))
}

// Delete removes note id within sessionID.
func (r *NoteRepository) Delete(ctx context.Context, sessionID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = ? AND session_id = ?`, id, sessionID)
	if err != nil {
		return fmt.Errorf("store: delete note: %w", err)
	}
	return expectOne(res, fmt.Sprintf("note %d", id))
}

// ListBySession returns the notes of a session, oldest first.
func (r *NoteRepository) ListBySession(ctx context.Context, sessionID int64) ([]models.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, content, created_at FROM notes
		 WHERE session_id = ? ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.SessionID, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectOne(res rowsAffected, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return nil
}
