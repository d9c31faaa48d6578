package sessionservice

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/safename"
	"github.com/starford/nocel/internal/sse"
	"github.com/starford/nocel/internal/store"
)

// codeLen is the length of the numeric suffix of a combined private code.
const codeLen = 4

// Page is one page of the public session list.
type Page struct {
	Names      []string `json:"names"`
	Search     string   `json:"search,omitempty"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
	Total      int      `json:"total"`
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Page) HasNext() bool { return p.Page < p.TotalPages }

// Create sanitizes rawName and registers a new session of typ. Private
// sessions get a fresh 4-digit code. An existing (name, type) pair yields
// apperr.ErrConflict.
func (s *Service) Create(ctx context.Context, rawName string, typ models.SessionType) (*models.Session, error) {
	if _, err := models.ParseSessionType(string(typ)); err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	sess := &models.Session{
		Name:      safename.Name(rawName),
		Type:      typ,
		CreatedAt: s.now().UTC(),
	}
	if sess.IsPrivate() {
		code, err := s.codes()
		if err != nil {
			return nil, fmt.Errorf("generate private code: %w", err)
		}
		sess.PrivateCode = code
	}
	if err := store.Sessions(dbx.From(ctx, s.pool)).Create(ctx, sess); err != nil {
		return nil, err
	}
	s.notify(sse.SessionCreated, sess, sess.ID)
	return sess, nil
}

// Lookup returns the session identified by (name, typ).
func (s *Service) Lookup(ctx context.Context, name string, typ models.SessionType) (*models.Session, error) {
	return store.Sessions(dbx.From(ctx, s.pool)).Get(ctx, name, typ)
}

// ListPublic returns public session names ordered by name. A non-empty search
// keeps names whose normalized form contains the normalized query.
func (s *Service) ListPublic(ctx context.Context, search string) ([]string, error) {
	names, err := store.Sessions(dbx.From(ctx, s.pool)).ListNames(ctx, models.SessionPublic)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(search) == "" {
		return names, nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if safename.Matches(n, search) {
			out = append(out, n)
		}
	}
	return out, nil
}

// PagePublic paginates ListPublic. page is 1-based and clamped to the valid
// range; there is always at least one page.
func (s *Service) PagePublic(ctx context.Context, search string, page, size int) (Page, error) {
	names, err := s.ListPublic(ctx, search)
	if err != nil {
		return Page{}, err
	}
	if size <= 0 {
		size = len(names)
	}
	total := len(names)
	pages := 1
	if size > 0 && total > 0 {
		pages = (total + size - 1) / size
	}
	page = min(max(page, 1), pages)

	start := min((page-1)*size, total)
	end := min(start+size, total)
	return Page{
		Names:      names[start:end],
		Search:     search,
		Page:       page,
		TotalPages: pages,
		Total:      total,
	}, nil
}

// VerifyPrivateAccess resolves a combined code (session name followed by the
// 4-digit code). Malformed input is apperr.ErrInvalidInput; an unknown
// session and a wrong code are both apperr.ErrNotFound.
func (s *Service) VerifyPrivateAccess(ctx context.Context, combined string) (*models.Session, error) {
	combined = strings.TrimSpace(combined)
	if len(combined) <= codeLen {
		return nil, apperr.Invalid("private code must be the session name followed by %d digits", codeLen)
	}
	name, code := combined[:len(combined)-codeLen], combined[len(combined)-codeLen:]

	sess, err := s.Lookup(ctx, name, models.SessionPrivate)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(sess.PrivateCode), []byte(code)) != 1 {
		return nil, fmt.Errorf("private session %s: %w", name, apperr.ErrNotFound)
	}
	return sess, nil
}

// SweepExpired deletes every session created at or before now-ttl together
// with its notes, files and storage prefix. Failures are logged and never
// returned; the result lists the sessions actually removed.
func (s *Service) SweepExpired(ctx context.Context, ttl time.Duration) []models.Session {
	cutoff := s.now().Add(-ttl)
	var expired []models.Session

	err := dbx.WithTx(ctx, dbx.From(ctx, s.pool), func(ctx context.Context, tx dbx.DBTX) error {
		repo := store.Sessions(tx)
		var err error
		if expired, err = repo.ListCreatedBefore(ctx, cutoff); err != nil {
			return err
		}
		ids := make([]int64, len(expired))
		for i, sess := range expired {
			ids[i] = sess.ID
		}
		_, err = repo.Delete(ctx, ids...)
		return err
	})
	if err != nil {
		s.log.Warn("expiry sweep failed", slog.String("error", err.Error()))
		return nil
	}

	for i := range expired {
		sess := &expired[i]
		if err := s.blobs.DeletePrefix(ctx, sess.StoragePrefix()); err != nil {
			s.log.Warn("expiry sweep: remove storage",
				slog.String("session", sess.StoragePrefix()),
				slog.String("error", err.Error()))
		}
		s.notify(sse.SessionExpired, sess, sess.ID)
	}
	if len(expired) > 0 {
		s.log.Info("expired sessions removed", slog.Int("count", len(expired)))
	}
	return expired
}

// Delete removes one session, its records and its blobs.
func (s *Service) Delete(ctx context.Context, sess *models.Session) error {
	n, err := store.Sessions(dbx.From(ctx, s.pool)).Delete(ctx, sess.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sess.StoragePrefix(), apperr.ErrNotFound)
	}
	if err := s.blobs.DeletePrefix(ctx, sess.StoragePrefix()); err != nil {
		return fmt.Errorf("remove storage: %w", err)
	}
	s.notify(sse.SessionDeleted, sess, sess.ID)
	return nil
}
