// Package store provides the SQLite-backed relational store for sessions,
// notes and files.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/store/migrations"
)

// DB wraps the sql.DB pool of the Nocel database.
type DB struct {
	conn *sql.DB
}

// gooseUp is a seam over goose.UpContext.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Open opens (or creates) the SQLite database and migrates it to the latest
// schema. Foreign keys are enforced on every pooled connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := migrate(ctx, conn, logger); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

func migrate(ctx context.Context, conn *sql.DB, logger *slog.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: goose dialect: %w", err)
	}
	if logger != nil {
		goose.SetLogger(gooseLogger{logger: logger})
	}
	if err := gooseUp(ctx, conn, "."); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *sql.DB {
	return db.conn
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// gooseLogger routes goose output into slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug("migrate", slog.String("msg", fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error("migrate", slog.String("msg", fmt.Sprintf(format, v...)))
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return fmt.Errorf("store: %s: %w", what, err)
}
