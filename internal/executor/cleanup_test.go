package executor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/backend"
)

func TestCleanupTrimsCompletedRecords(t *testing.T) {
	fb := &fakeBackend{kind: agent.BackendGoroutine}
	ex, _, shutdown := newTestExecutor(t, 4, []backend.Backend{fb})
	defer shutdown()

	ex.cfg.CompletedRetention = 2
	ex.mu.Lock()
	for _, id := range []string{"old-1", "old-2", "old-3", "keep-1", "keep-2"} {
		ex.completed = append(ex.completed, &agent.Record{ID: id, Status: agent.StatusCompleted})
	}
	ex.mu.Unlock()

	ex.cleanupTick()

	ex.mu.RLock()
	defer ex.mu.RUnlock()
	if len(ex.completed) != 2 {
		t.Fatalf("expected 2 retained records, got %d", len(ex.completed))
	}
	if ex.completed[0].ID != "keep-1" || ex.completed[1].ID != "keep-2" {
		t.Fatalf("expected newest records retained, got %s %s", ex.completed[0].ID, ex.completed[1].ID)
	}
}

func TestCleanupSweepsStaleArtifacts(t *testing.T) {
	fb := &fakeBackend{kind: agent.BackendGoroutine}
	ex, _, shutdown := newTestExecutor(t, 4, []backend.Backend{fb})
	defer shutdown()

	stale, err := ex.store.Dir("stale-agent")
	if err != nil {
		t.Fatalf("dir: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	ex.cfg.ArtifactMaxAge = time.Hour
	ex.cleanupTick()

	if _, err := os.Stat(filepath.Join(ex.store.Root(), "stale-agent")); !os.IsNotExist(err) {
		t.Fatalf("expected stale directory removed, stat err = %v", err)
	}
}

func TestCleanupKeepsFreshArtifacts(t *testing.T) {
	fb := &fakeBackend{kind: agent.BackendGoroutine}
	ex, _, shutdown := newTestExecutor(t, 4, []backend.Backend{fb})
	defer shutdown()

	if _, err := ex.store.Dir("fresh-agent"); err != nil {
		t.Fatalf("dir: %v", err)
	}

	ex.cfg.ArtifactMaxAge = time.Hour
	ex.cleanupTick()

	if _, err := os.Stat(filepath.Join(ex.store.Root(), "fresh-agent")); err != nil {
		t.Fatalf("fresh directory must survive the sweep: %v", err)
	}
}
