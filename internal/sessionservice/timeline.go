package sessionservice

import (
	"context"
	"sort"

	"github.com/starford/nocel/internal/models"
)

// Timeline merges the notes and files of sess into one list ordered by
// creation time. On equal timestamps notes come first, then lower ids.
func (s *Service) Timeline(ctx context.Context, sess *models.Session) ([]models.Item, error) {
	notes, err := s.ListNotes(ctx, sess)
	if err != nil {
		return nil, err
	}
	files, err := s.ListFiles(ctx, sess)
	if err != nil {
		return nil, err
	}

	items := make([]models.Item, 0, len(notes)+len(files))
	for i := range notes {
		items = append(items, models.Item{Kind: models.ItemNote, CreatedAt: notes[i].CreatedAt, Note: &notes[i]})
	}
	for i := range files {
		items = append(items, models.Item{Kind: models.ItemFile, CreatedAt: files[i].CreatedAt, File: &files[i]})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Kind != b.Kind {
			return a.Kind == models.ItemNote
		}
		return itemID(a) < itemID(b)
	})
	return items, nil
}

func itemID(it models.Item) int64 {
	if it.Note != nil {
		return it.Note.ID
	}
	return it.File.ID
}
