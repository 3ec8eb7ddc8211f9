package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndReadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := store.WriteProgress("a1", ProgressRecord{AgentID: "a1", Progress: 0.5, Status: "running", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	rec, ok, err := store.ReadProgress("a1")
	if err != nil || !ok {
		t.Fatalf("expected progress record, ok=%v err=%v", ok, err)
	}
	if rec.Progress != 0.5 {
		t.Fatalf("expected progress 0.5, got %f", rec.Progress)
	}

	path, err := store.WriteError("a1", ErrorRecord{AgentID: "a1", Error: "memory limit exceeded", Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected error artifact at %s: %v", path, err)
	}
}

func TestReadMissingIsNotAnError(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	_, ok, err := store.ReadResult("ghost")
	if err != nil {
		t.Fatalf("missing artifact should not error, got %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing artifact")
	}
}

func TestSweepRemovesOnlyStaleDirs(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.WriteResult("stale", ResultRecord{AgentID: "stale", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.WriteResult("fresh", ResultRecord{AgentID: "fresh", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	// Age the stale dir by backdating its files and the dir itself.
	old := time.Now().Add(-2 * time.Hour)
	staleDir := filepath.Join(root, "stale")
	if err := os.Chtimes(filepath.Join(staleDir, ResultFile), old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(staleDir, old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Sweep(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 dir removed, got %d", removed)
	}
	if _, err := os.Stat(staleDir); !os.IsNotExist(err) {
		t.Fatal("expected stale dir removed")
	}
	if _, err := os.Stat(filepath.Join(root, "fresh")); err != nil {
		t.Fatal("expected fresh dir retained")
	}
}
