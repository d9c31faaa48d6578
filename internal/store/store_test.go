package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nocel-test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustSession(t *testing.T, db *DB, name string, typ models.SessionType, created time.Time) *models.Session {
	t.Helper()
	s := &models.Session{Name: name, Type: typ, CreatedAt: created}
	require.NoError(t, Sessions(db.Pool()).Create(context.Background(), s))
	return s
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"sessions", "notes", "files"} {
		var count int
		err := db.Pool().QueryRow(`SELECT count(*) FROM ` + table).Scan(&count)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestOpenTwiceIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	db, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestSessionCreateConflictPerType(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()

	mustSession(t, db, "Trip_Notes", models.SessionPublic, now)

	dup := &models.Session{Name: "Trip_Notes", Type: models.SessionPublic, CreatedAt: now}
	err := Sessions(db.Pool()).Create(ctx, dup)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	other := &models.Session{Name: "Trip_Notes", Type: models.SessionPrivate, PrivateCode: "1234", CreatedAt: now}
	require.NoError(t, Sessions(db.Pool()).Create(ctx, other))
	assert.NotZero(t, other.ID)

	got, err := Sessions(db.Pool()).Get(ctx, "Trip_Notes", models.SessionPrivate)
	require.NoError(t, err)
	assert.Equal(t, "1234", got.PrivateCode)
}

func TestSessionGetNotFound(t *testing.T) {
	db := testDB(t)
	_, err := Sessions(db.Pool()).Get(context.Background(), "nope", models.SessionPublic)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListNamesOrdered(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	mustSession(t, db, "b", models.SessionPublic, now)
	mustSession(t, db, "a", models.SessionPublic, now)
	mustSession(t, db, "hidden", models.SessionPrivate, now)

	names, err := Sessions(db.Pool()).ListNames(context.Background(), models.SessionPublic)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestListCreatedBefore(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()
	old := mustSession(t, db, "old", models.SessionPublic, now.Add(-48*time.Hour))
	mustSession(t, db, "fresh", models.SessionPublic, now.Add(-time.Hour))

	expired, err := Sessions(db.Pool()).ListCreatedBefore(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
}

func TestDeleteCascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := mustSession(t, db, "gone", models.SessionPublic, time.Now())

	require.NoError(t, Notes(db.Pool()).Insert(ctx, &models.Note{SessionID: s.ID, Content: "hi", CreatedAt: time.Now()}))
	require.NoError(t, Files(db.Pool()).Upsert(ctx, &models.File{
		SessionID: s.ID, Filename: "a_1.txt", Path: "public/gone/a_1.txt", Kind: models.KindText, Size: 3, CreatedAt: time.Now(),
	}))

	n, err := Sessions(db.Pool()).Delete(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	notes, err := Notes(db.Pool()).ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
	files, err := Files(db.Pool()).ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestNoteOwnership(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustSession(t, db, "a", models.SessionPublic, time.Now())
	b := mustSession(t, db, "b", models.SessionPublic, time.Now())

	n := &models.Note{SessionID: a.ID, Content: "mine", CreatedAt: time.Now()}
	require.NoError(t, Notes(db.Pool()).Insert(ctx, n))

	assert.ErrorIs(t, Notes(db.Pool()).UpdateContent(ctx, b.ID, n.ID, "stolen"), apperr.ErrNotFound)
	assert.ErrorIs(t, Notes(db.Pool()).Delete(ctx, b.ID, n.ID), apperr.ErrNotFound)
	_, err := Notes(db.Pool()).Get(ctx, b.ID, n.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, Notes(db.Pool()).UpdateContent(ctx, a.ID, n.ID, "edited"))
	got, err := Notes(db.Pool()).Get(ctx, a.ID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)
}

func TestNotesOrderedByCreation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := mustSession(t, db, "s", models.SessionPublic, time.Now())
	base := time.Now().UTC()

	require.NoError(t, Notes(db.Pool()).Insert(ctx, &models.Note{SessionID: s.ID, Content: "second", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, Notes(db.Pool()).Insert(ctx, &models.Note{SessionID: s.ID, Content: "first", CreatedAt: base}))

	notes, err := Notes(db.Pool()).ListBySession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "first", notes[0].Content)
	assert.Equal(t, "second", notes[1].Content)
}

func TestFileUpsertAndTotals(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := mustSession(t, db, "f", models.SessionPublic, time.Now())
	files := Files(db.Pool())

	f := &models.File{SessionID: s.ID, Filename: "x_1.txt", Path: "public/f/x_1.txt", MimeType: "text/plain", Kind: models.KindText, Size: 10, CreatedAt: time.Now()}
	require.NoError(t, files.Upsert(ctx, f))
	firstID := f.ID

	f.Size = 25
	require.NoError(t, files.Upsert(ctx, f))
	assert.Equal(t, firstID, f.ID, "upsert keeps the row")

	require.NoError(t, files.Upsert(ctx, &models.File{SessionID: s.ID, Filename: "y_2.bin", Path: "public/f/y_2.bin", Kind: models.KindOther, Size: 5, CreatedAt: time.Now()}))

	total, err := files.TotalBytes(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 30, total)

	got, err := files.GetByName(ctx, s.ID, "x_1.txt")
	require.NoError(t, err)
	assert.Equal(t, models.KindText, got.Kind)

	changed, err := files.SetSizeByPath(ctx, "public/f/x_1.txt", 40)
	require.NoError(t, err)
	assert.True(t, changed)

	n, err := files.DeleteByPath(ctx, "public/f/y_2.bin")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	total, err = files.TotalBytes(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 40, total)
}

func TestTotalBytesEmptySession(t *testing.T) {
	db := testDB(t)
	s := mustSession(t, db, "empty", models.SessionPublic, time.Now())
	total, err := Files(db.Pool()).TotalBytes(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Zero(t, total)
}
