package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/models"
)

// SessionRepository reads and writes the sessions table through a DBTX.
type SessionRepository struct {
	db dbx.DBTX
}

// Sessions binds a SessionRepository to db (pool, request conn or tx).
func Sessions(db dbx.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, name, type, COALESCE(private_code, ''), created_at`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	var s models.Session
	var typ string
	if err := row.Scan(&s.ID, &s.Name, &typ, &s.PrivateCode, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Type = models.SessionType(typ)
	return &s, nil
}

// Create inserts s and sets its ID. A duplicate (name, type) yields
// apperr.ErrConflict.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	var code any
	if s.PrivateCode != "" {
		code = s.PrivateCode
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (name, type, private_code, created_at) VALUES (?, ?, ?, ?)`,
		s.Name, string(s.Type), code, s.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session %s/%s: %w", s.Type, s.Name, apperr.ErrConflict)
		}
		return fmt.Errorf("store: insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: session id: %w", err)
	}
	s.ID = id
	return nil
}

// Get returns the session identified by (name, type).
func (r *SessionRepository) Get(ctx context.Context, name string, typ models.SessionType) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE name = ? AND type = ?`, name, string(typ))
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, "session "+string(typ)+"/"+name)
	}
	return s, nil
}

// ListNames returns the names of all sessions of typ ordered by name.
func (r *SessionRepository) ListNames(ctx context.Context, typ models.SessionType) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM sessions WHERE type = ? ORDER BY name`, string(typ))
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ListCreatedBefore returns every session created at or before cutoff.
func (r *SessionRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE created_at <= ? ORDER BY id`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: list expired: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Delete removes sessions by id. Notes and files go with them through the
// ON DELETE CASCADE foreign keys.
func (r *SessionRepository) Delete(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("store: delete sessions: %w", err)
	}
	return res.RowsAffected()
}
