package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autoindex/internal/store"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "server: [not, a, map]\n")
	if err := run(context.Background(), path); err == nil {
		t.Fatal("run with malformed config succeeded")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db", "autoindex.db")
	t.Setenv("AUTOINDEX_DATA_DIR", dir)
	t.Setenv("AUTOINDEX_SQLITE_PATH", dbPath)
	path := writeConfig(t, dir, "server:\n  host: 127.0.0.1\n  port: 0\n  grpc_port: 0\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, path) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	// The database was created and released; it opens again cleanly.
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	db.Close()
}
