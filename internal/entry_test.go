package internal

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/sessionservice"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = filepath.Join(dir, "db", "nocel.db")
	cfg.Storage.Path = filepath.Join(dir, "uploads")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestSetupCreatesDirectories(t *testing.T) {
	cfg := testConfig(t)
	rt, err := setup(context.Background(), io.Discard, WithConfig(cfg))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer rt.db.Close()

	if rt.fs == nil {
		t.Fatal("fs backend should enable the watcher")
	}
	if err := rt.db.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestSetupRequiresConfig(t *testing.T) {
	if _, err := setup(context.Background(), io.Discard); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRunSweep(t *testing.T) {
	cfg := testConfig(t)
	cfg.Policy.Expiry.TTL = time.Hour

	// seed one stale and one fresh session through the same database
	rt, err := setup(context.Background(), io.Discard, WithConfig(cfg))
	if err != nil {
		t.Fatal(err)
	}
	old := rt.service(sessionservice.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	if _, err := old.Create(context.Background(), "stale", models.SessionPublic); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.service().Create(context.Background(), "fresh", models.SessionPublic); err != nil {
		t.Fatal(err)
	}
	rt.db.Close()

	n, err := RunSweep(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
}

func TestRunSweepDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Policy.Expiry.Enabled = false
	if _, err := RunSweep(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error when expiry is disabled")
	}
}
