package procbackend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/AgentForge/internal/artifact"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/backend"
	"github.com/Strob0t/AgentForge/internal/port/unit"
)

// fakeWorker writes a shell script standing in for the worker binary.
func fakeWorker(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script workers are unix-only")
	}
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil { //nolint:gosec // test fixture must be executable
		t.Fatalf("write fake worker: %v", err)
	}
	return path
}

func newTestBackend(t *testing.T, script string) (*Backend, *artifact.Store) {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return New(fakeWorker(t, script), store), store
}

func TestKind(t *testing.T) {
	b, _ := newTestBackend(t, "exit 0")
	if b.Kind() != agent.BackendProcess {
		t.Fatalf("expected process kind, got %s", b.Kind())
	}
}

func TestStartWritesDescriptor(t *testing.T) {
	b, store := newTestBackend(t, "exit 0")

	h, err := b.Start(context.Background(), backend.StartSpec{
		AgentID:   "a1",
		UnitClass: "echo",
		Payload:   []byte(`{"message":"hi"}`),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, ok := h.Pid(); !ok {
		t.Fatal("process handle must report a pid")
	}

	data, err := os.ReadFile(filepath.Join(store.Root(), "a1", artifact.DescriptorFile))
	if err != nil {
		t.Fatalf("read descriptor: %v", err)
	}
	var req unit.Request
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	if req.AgentID != "a1" || req.Class != "echo" {
		t.Fatalf("unexpected descriptor %+v", req)
	}

	if _, err := b.Wait(context.Background(), h); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWaitSuccessReturnsResultRef(t *testing.T) {
	b, store := newTestBackend(t, "exit 0")

	// Simulate the worker having written its result.
	if _, err := store.WriteResult("a1", artifact.ResultRecord{
		AgentID:   "a1",
		Output:    "computed",
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("write result: %v", err)
	}

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "echo"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := b.Wait(context.Background(), h)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !strings.HasSuffix(res.OutputRef, artifact.ResultFile) {
		t.Fatalf("expected result ref, got %q", res.OutputRef)
	}
	if res.Detail != "computed" {
		t.Fatalf("expected worker output, got %q", res.Detail)
	}
}

func TestWaitSurfacesWorkerError(t *testing.T) {
	b, store := newTestBackend(t, "exit 3")

	if _, err := store.WriteError("a1", artifact.ErrorRecord{
		AgentID:   "a1",
		Error:     "execution failure",
		Detail:    "payload rejected",
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("write error: %v", err)
	}

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "echo"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = b.Wait(context.Background(), h)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "execution failure") {
		t.Fatalf("expected the worker's error record in the message, got %v", err)
	}
}

func TestKillTerminatesWorker(t *testing.T) {
	b, _ := newTestBackend(t, "sleep 30")

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "echo"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := b.Kill(context.Background(), h, true); err != nil {
		t.Fatalf("kill: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := b.Wait(context.Background(), h)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("killed worker should report an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker survived SIGKILL")
	}
}

func TestPauseResumeSignals(t *testing.T) {
	b, _ := newTestBackend(t, "sleep 30")

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "echo"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = b.Kill(context.Background(), h, true) }()

	if err := b.Signal(context.Background(), h, backend.SignalPause); err != nil {
		t.Fatalf("pause signal: %v", err)
	}
	if err := b.Signal(context.Background(), h, backend.SignalResume); err != nil {
		t.Fatalf("resume signal: %v", err)
	}
}

func TestMissingWorkerBinaryFailsStart(t *testing.T) {
	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	b := New("/no/such/binary", store)

	if _, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "echo"}); err == nil {
		t.Fatal("expected error starting a missing worker binary")
	}
}

func TestForeignHandleRejected(t *testing.T) {
	b, _ := newTestBackend(t, "exit 0")

	if _, err := b.Wait(context.Background(), fakeHandle{}); err == nil {
		t.Fatal("expected error for foreign handle")
	}
}

type fakeHandle struct{}

func (fakeHandle) Pid() (int, bool) { return 0, false }
