package sessionservice

import (
	"context"
	"strings"

	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/sse"
	"github.com/starford/nocel/internal/store"
)

// AddNote appends a note. Blank content is ignored: the result is nil with
// no error. Non-blank content is stored as given.
func (s *Service) AddNote(ctx context.Context, sess *models.Session, content string) (*models.Note, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	n := &models.Note{SessionID: sess.ID, Content: content, CreatedAt: s.now().UTC()}
	if err := store.Notes(dbx.From(ctx, s.pool)).Insert(ctx, n); err != nil {
		return nil, err
	}
	s.notify(sse.NoteAdded, sess, n.ID)
	return n, nil
}

// UpdateNote replaces the content of a note owned by sess. Blank content
// leaves the note unchanged.
func (s *Service) UpdateNote(ctx context.Context, sess *models.Session, noteID int64, content string) (*models.Note, error) {
	repo := store.Notes(dbx.From(ctx, s.pool))
	n, err := repo.Get(ctx, sess.ID, noteID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" || content == n.Content {
		return n, nil
	}
	if err := repo.UpdateContent(ctx, sess.ID, noteID, content); err != nil {
		return nil, err
	}
	n.Content = content
	s.notify(sse.NoteUpdated, sess, n.ID)
	return n, nil
}

// DeleteNote removes a note owned by sess.
func (s *Service) DeleteNote(ctx context.Context, sess *models.Session, noteID int64) error {
	if err := store.Notes(dbx.From(ctx, s.pool)).Delete(ctx, sess.ID, noteID); err != nil {
		return err
	}
	s.notify(sse.NoteDeleted, sess, noteID)
	return nil
}

// ListNotes returns the notes of sess, oldest first.
func (s *Service) ListNotes(ctx context.Context, sess *models.Session) ([]models.Note, error) {
	return store.Notes(dbx.From(ctx, s.pool)).ListBySession(ctx, sess.ID)
}
