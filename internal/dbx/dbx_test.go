package dbx

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "dbx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	return db
}

func count(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM kv`).Scan(&n))
	return n
}

func TestWithTx_Commit(t *testing.T) {
	db := openDB(t)
	err := WithTx(context.Background(), db, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ('a', '1')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := openDB(t)
	boom := errors.New("boom")
	err := WithTx(context.Background(), db, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ('a', '1')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db))
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := openDB(t)
	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, func(ctx context.Context, tx DBTX) error {
			_, _ = tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ('a', '1')`)
			panic("oops")
		})
	})
	assert.Equal(t, 0, count(t, db))
}

func TestFrom_FallsBackWithoutConn(t *testing.T) {
	db := openDB(t)
	assert.Equal(t, Handle(db), From(context.Background(), db))
}

func TestScoped_ProvidesConn(t *testing.T) {
	db := openDB(t)
	var seen Handle
	h := Scoped(db, func(w http.ResponseWriter, _ *http.Request, err error) {
		t.Fatalf("unexpected conn error: %v", err)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = From(r.Context(), db)
		_, err := seen.ExecContext(r.Context(), `INSERT INTO kv (k, v) VALUES ('x', 'y')`)
		require.NoError(t, err)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	_, isConn := seen.(*sql.Conn)
	assert.True(t, isConn, "handler should see the scoped *sql.Conn")
	assert.Equal(t, 1, count(t, db))
	assert.Equal(t, 0, db.Stats().InUse, "conn must be released after the request")
}
