package sessionservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/checksum"
	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/filekind"
	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/safename"
	"github.com/starford/nocel/internal/sse"
	"github.com/starford/nocel/internal/storage"
	"github.com/starford/nocel/internal/store"
)

// MaxEditableText bounds the text files that can be opened for editing.
const MaxEditableText = 1 << 20

const sniffLen = 512

// Upload is an incoming file. Size is the declared length, -1 when unknown.
type Upload struct {
	Name string
	Body io.Reader
	Size int64
}

// TextFile is an editable text blob together with its digest.
type TextFile struct {
	File     *models.File
	Content  string
	Checksum string
}

// ListFiles returns the file records of sess, oldest first.
func (s *Service) ListFiles(ctx context.Context, sess *models.Session) ([]models.File, error) {
	return store.Files(dbx.From(ctx, s.pool)).ListBySession(ctx, sess.ID)
}

// TotalBytes is the sum of the recorded sizes of the files of sess.
func (s *Service) TotalBytes(ctx context.Context, sess *models.Session) (int64, error) {
	return store.Files(dbx.From(ctx, s.pool)).TotalBytes(ctx, sess.ID)
}

// Usage reports storage consumption of sess against the quota.
func (s *Service) Usage(ctx context.Context, sess *models.Session) (models.Usage, error) {
	used, err := s.TotalBytes(ctx, sess)
	if err != nil {
		return models.Usage{}, err
	}
	return models.NewUsage(used, s.Quota()), nil
}

// Admit rejects a request whose declared length alone exceeds the quota,
// before any of the body is read. A nil sess stands for a session that does
// not exist yet.
func (s *Service) Admit(ctx context.Context, sess *models.Session, declared int64) error {
	if s.quota <= 0 || declared <= s.quota {
		return nil
	}
	var used int64
	if sess != nil {
		var err error
		if used, err = s.TotalBytes(ctx, sess); err != nil {
			return err
		}
	}
	return s.quotaError(used)
}

func (s *Service) quotaError(used int64) error {
	return &apperr.QuotaError{Used: used, Limit: s.quota, Remaining: max(s.quota-used, 0)}
}

// StoreFile writes an upload into the storage area of sess and records it.
// The stored name is the sanitized original name with a random suffix. With
// the quota enabled the blob may use at most the remaining bytes; an
// oversized upload is discarded and reported as *apperr.QuotaError.
func (s *Service) StoreFile(ctx context.Context, sess *models.Session, up Upload) (*models.File, models.Usage, error) {
	if strings.TrimSpace(up.Name) == "" {
		return nil, models.Usage{}, apperr.Invalid("no file selected")
	}
	repo := store.Files(dbx.From(ctx, s.pool))
	used, err := repo.TotalBytes(ctx, sess.ID)
	if err != nil {
		return nil, models.Usage{}, err
	}

	limit := int64(-1)
	if s.quota > 0 {
		limit = max(s.quota-used, 0)
		if up.Size > limit {
			return nil, models.Usage{}, s.quotaError(used)
		}
	}

	base, ext := safename.SplitExt(up.Name)
	stored := base + "_" + s.suffix() + ext
	key := storage.Join(sess.StoragePrefix(), stored)

	head := &sniffer{}
	n, err := s.blobs.Put(ctx, key, io.TeeReader(up.Body, head), limit)
	if err != nil {
		if errors.Is(err, storage.ErrLimitExceeded) {
			return nil, models.Usage{}, s.quotaError(used)
		}
		return nil, models.Usage{}, fmt.Errorf("store blob: %w", err)
	}

	f := &models.File{
		SessionID: sess.ID,
		Filename:  stored,
		Path:      key,
		MimeType:  filekind.MIMEType(stored, head.buf),
		Kind:      filekind.Classify(stored),
		Size:      n,
		CreatedAt: s.now().UTC(),
	}
	if err := repo.Upsert(ctx, f); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.log.Warn("remove orphaned blob", slog.String("key", key), slog.String("error", derr.Error()))
		}
		return nil, models.Usage{}, err
	}
	s.notify(sse.FileUploaded, sess, f.ID)
	return f, models.NewUsage(used+n, s.Quota()), nil
}

// LookupFile returns the record of storedName if it belongs to sess.
func (s *Service) LookupFile(ctx context.Context, sess *models.Session, storedName string) (*models.File, error) {
	f, err := store.Files(dbx.From(ctx, s.pool)).GetByName(ctx, sess.ID, storedName)
	if err != nil {
		return nil, err
	}
	if f.Path != storage.Join(sess.StoragePrefix(), f.Filename) {
		return nil, fmt.Errorf("file %s: %w", storedName, apperr.ErrNotFound)
	}
	return f, nil
}

// FetchFile opens the blob of storedName inside sess. The caller closes the object.
func (s *Service) FetchFile(ctx context.Context, sess *models.Session, storedName string) (*models.File, *storage.Object, error) {
	f, err := s.LookupFile(ctx, sess, storedName)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.blobs.Open(ctx, f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("blob %s: %w", f.Path, apperr.ErrNotFound)
		}
		return nil, nil, err
	}
	return f, obj, nil
}

// RemoveFile deletes a file of sess: blob first, then the record and any
// cached thumbnail.
func (s *Service) RemoveFile(ctx context.Context, sess *models.Session, fileID int64) error {
	repo := store.Files(dbx.From(ctx, s.pool))
	f, err := repo.Get(ctx, sess.ID, fileID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, f.Path); err != nil {
		return err
	}
	// the watcher may already have dropped the record once the blob vanished
	if err := repo.Delete(ctx, sess.ID, fileID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if err := s.blobs.Delete(ctx, storage.ThumbKey(f.Path)); err != nil {
		s.log.Warn("remove thumbnail", slog.String("key", f.Path), slog.String("error", err.Error()))
	}
	s.notify(sse.FileRemoved, sess, fileID)
	return nil
}

// ReadText loads a text-kind file for editing.
func (s *Service) ReadText(ctx context.Context, sess *models.Session, fileID int64) (*TextFile, error) {
	f, err := s.editable(ctx, sess, fileID)
	if err != nil {
		return nil, err
	}
	if f.Size > MaxEditableText {
		return nil, apperr.Invalid("file %s is too large to edit", f.Filename)
	}
	data, err := s.readBlob(ctx, f)
	if err != nil {
		return nil, err
	}
	return &TextFile{File: f, Content: string(data), Checksum: checksum.Sum(data)}, nil
}

// OverwriteText replaces the content of a text-kind file. A non-empty
// ifMatch must equal the checksum of the current content, else
// apperr.ErrConflict. The quota applies to the size after the write.
func (s *Service) OverwriteText(ctx context.Context, sess *models.Session, fileID int64, content, ifMatch string) (*models.File, models.Usage, error) {
	f, err := s.editable(ctx, sess, fileID)
	if err != nil {
		return nil, models.Usage{}, err
	}
	if ifMatch != "" {
		current, err := s.readBlob(ctx, f)
		if err != nil {
			return nil, models.Usage{}, err
		}
		if !checksum.Match(ifMatch, checksum.Sum(current)) {
			return nil, models.Usage{}, fmt.Errorf("file %s changed: %w", f.Filename, apperr.ErrConflict)
		}
	}

	repo := store.Files(dbx.From(ctx, s.pool))
	used, err := repo.TotalBytes(ctx, sess.ID)
	if err != nil {
		return nil, models.Usage{}, err
	}
	others := used - f.Size
	limit := int64(-1)
	if s.quota > 0 {
		limit = max(s.quota-others, 0)
	}

	n, err := s.blobs.Put(ctx, f.Path, strings.NewReader(content), limit)
	if err != nil {
		if errors.Is(err, storage.ErrLimitExceeded) {
			return nil, models.Usage{}, s.quotaError(used)
		}
		return nil, models.Usage{}, fmt.Errorf("store blob: %w", err)
	}
	if _, err := repo.SetSizeByPath(ctx, f.Path, n); err != nil {
		return nil, models.Usage{}, err
	}
	f.Size = n
	s.notify(sse.FileUpdated, sess, f.ID)
	return f, models.NewUsage(others+n, s.Quota()), nil
}

func (s *Service) editable(ctx context.Context, sess *models.Session, fileID int64) (*models.File, error) {
	f, err := store.Files(dbx.From(ctx, s.pool)).Get(ctx, sess.ID, fileID)
	if err != nil {
		return nil, err
	}
	if !f.Editable() {
		return nil, apperr.Invalid("file %s is not a text file", f.Filename)
	}
	return f, nil
}

func (s *Service) readBlob(ctx context.Context, f *models.File) ([]byte, error) {
	obj, err := s.blobs.Open(ctx, f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", f.Path, apperr.ErrNotFound)
		}
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(io.LimitReader(obj, MaxEditableText+1))
}

// sniffer keeps the first bytes of a stream for content type detection.
type sniffer struct {
	buf []byte
}

func (s *sniffer) Write(p []byte) (int, error) {
	if room := sniffLen - len(s.buf); room > 0 {
		s.buf = append(s.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}
