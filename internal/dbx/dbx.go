// Package dbx holds the small database/sql seams shared by the store and
// the service: a query interface satisfied by *sql.DB, *sql.Conn and *sql.Tx,
// a transaction helper and a request-scoped connection.
package dbx

import (
	"context"
	"database/sql"
	"net/http"
)

// DBTX is the subset of database/sql used by repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Beginner starts transactions. *sql.DB and *sql.Conn implement it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Handle is a connection that can both query and open transactions.
type Handle interface {
	DBTX
	Beginner
}

// WithTx begins a transaction on h, runs fn with it and commits on success.
// The transaction is rolled back when fn returns an error or panics; panics
// are rethrown.
func WithTx(ctx context.Context, h Beginner, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := h.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

type connKey struct{}

// WithConn stores a request-scoped connection in ctx.
func WithConn(ctx context.Context, conn *sql.Conn) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

// From returns the request-scoped connection stored in ctx, or fallback when
// the context carries none.
func From(ctx context.Context, fallback Handle) Handle {
	if conn, ok := ctx.Value(connKey{}).(*sql.Conn); ok && conn != nil {
		return conn
	}
	return fallback
}

// Scoped is HTTP middleware that checks a connection out of db when the
// request starts and returns it to the pool when the handler completes.
func Scoped(db *sql.DB, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := db.Conn(r.Context())
			if err != nil {
				onError(w, r, err)
				return
			}
			defer conn.Close()
			next.ServeHTTP(w, r.WithContext(WithConn(r.Context(), conn)))
		})
	}
}
