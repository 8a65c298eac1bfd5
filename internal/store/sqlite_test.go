package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "callgate.db")

	s, err := NewSQLiteStore(WithDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Errorf("Get on missing key: ok=%v err=%v", ok, err)
	}

	if err := s.Set("k", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, ok, err := s.Get("k")
	if err != nil || !ok || val != "v1" {
		t.Errorf("Get after Set: val=%q ok=%v err=%v", val, ok, err)
	}

	if err := s.Set("k", "v2"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	val, _, _ = s.Get("k")
	if val != "v2" {
		t.Errorf("expected upserted value v2, got %q", val)
	}

	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("key still present after Delete")
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "callgate.db")

	s1, err := NewSQLiteStore(WithDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s1.Set("pending_call_feedback", `{"lead_id":"lead-1"}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening the same file simulates a killed-and-relaunched process.
	s2, err := NewSQLiteStore(WithDSN(dbPath))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	val, ok, err := s2.Get("pending_call_feedback")
	if err != nil || !ok {
		t.Fatalf("expected value to survive reopen: ok=%v err=%v", ok, err)
	}
	if val != `{"lead_id":"lead-1"}` {
		t.Errorf("value corrupted across reopen: %q", val)
	}
}

func TestSQLiteStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	dbPath := filepath.Join(dir, "callgate.db")

	s, err := NewSQLiteStore(WithDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory to be created: %v", err)
	}
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error for empty DSN")
	}
}

func TestPostgresStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres integration test")
	}

	s, err := NewPostgresStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	defer s.Close()

	key := "test_integration_key"
	defer s.Delete(key)

	if err := s.Set(key, "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, ok, err := s.Get(key)
	if err != nil || !ok || val != "v1" {
		t.Errorf("Get after Set: val=%q ok=%v err=%v", val, ok, err)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get(key); ok {
		t.Error("key still present after Delete")
	}
}
