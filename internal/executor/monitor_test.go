package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/event"
	"github.com/Strob0t/AgentForge/internal/domain/resource"
	"github.com/Strob0t/AgentForge/internal/port/backend"
	"github.com/Strob0t/AgentForge/internal/port/sampling"
)

// fakeSampler returns a fixed usage for every pid.
type fakeSampler struct {
	mu    sync.Mutex
	usage sampling.Usage
	err   error
}

func (s *fakeSampler) Sample(_ context.Context, _ int) (sampling.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage, s.err
}

func TestMonitorKillsOnMemoryBreach(t *testing.T) {
	fb := newFakeBackend(agent.BackendProcess)
	fb.pid = 4242
	fb.hold = true
	sampler := &fakeSampler{usage: sampling.Usage{RSSBytes: 50 << 20, CPUPercent: 10}}
	ex, b, _ := newTestExecutor(t, 4, []backend.Backend{fb}, WithSampler(sampler))

	var mu sync.Mutex
	var limitEvents []event.Message
	b.Subscribe(event.TypeLimitExceeded, func(msg event.Message) {
		mu.Lock()
		limitEvents = append(limitEvents, msg)
		mu.Unlock()
	})

	id, err := ex.Spawn(context.Background(), "echo", nil, resource.Limits{
		MaxMemoryBytes: 1 << 20,
	}, agent.BackendProcess)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	view := waitStatus(t, ex, id, agent.StatusTerminated)
	if view.ErrorRef == "" {
		t.Fatal("limit-killed agent needs a non-empty error_ref")
	}
	if view.ErrorDetail == "" {
		t.Fatal("limit-killed agent needs error detail")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(limitEvents) == 0 {
		t.Fatal("expected a resource.limit_exceeded event")
	}
	if limitEvents[0].AgentID != id {
		t.Fatalf("limit event for wrong agent: %s", limitEvents[0].AgentID)
	}
}

func TestMonitorWarnsOnCPUWithoutKilling(t *testing.T) {
	fb := newFakeBackend(agent.BackendProcess)
	fb.pid = 4242
	fb.hold = true
	sampler := &fakeSampler{usage: sampling.Usage{RSSBytes: 1 << 20, CPUPercent: 350}}
	ex, b, _ := newTestExecutor(t, 4, []backend.Backend{fb}, WithSampler(sampler))

	highCPU := make(chan event.Message, 1)
	b.Subscribe(event.TypeHighCPU, func(msg event.Message) {
		select {
		case highCPU <- msg:
		default:
		}
	})

	id, err := ex.Spawn(context.Background(), "echo", nil, resource.Limits{
		MaxCPUPercent: 50,
	}, agent.BackendProcess)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitStatus(t, ex, id, agent.StatusRunning)

	select {
	case msg := <-highCPU:
		if msg.AgentID != id {
			t.Fatalf("high cpu event for wrong agent: %s", msg.AgentID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a resource.high_cpu event within a monitor interval")
	}

	// Soft warning only: the agent keeps running.
	view, err := ex.GetStatus(id)
	if err != nil || view.Status != agent.StatusRunning {
		t.Fatalf("cpu breach must not kill, got %v %v", view.Status, err)
	}

	close(fb.release)
}

func TestMonitorKillsOnDurationBreach(t *testing.T) {
	fb := newFakeBackend(agent.BackendGoroutine)
	fb.hold = true
	ex, _, _ := newTestExecutor(t, 4, []backend.Backend{fb})

	id, err := ex.Spawn(context.Background(), "echo", nil, resource.Limits{
		MaxDuration: time.Millisecond,
	}, agent.BackendGoroutine)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	// Goroutine agents get duration-only enforcement; no pid, no sampling.
	view := waitStatus(t, ex, id, agent.StatusTerminated)
	if view.ErrorDetail == "" {
		t.Fatal("duration kill needs error detail")
	}
}

func TestMonitorSkipsExitedProcess(t *testing.T) {
	fb := newFakeBackend(agent.BackendProcess)
	fb.pid = 4242
	fb.hold = true
	sampler := &fakeSampler{err: context.DeadlineExceeded}
	ex, _, _ := newTestExecutor(t, 4, []backend.Backend{fb}, WithSampler(sampler))

	id, err := ex.Spawn(context.Background(), "echo", nil, resource.Limits{
		MaxMemoryBytes: 1 << 20,
	}, agent.BackendProcess)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitStatus(t, ex, id, agent.StatusRunning)

	// Give the monitor a few ticks; a failing sample must not kill.
	time.Sleep(50 * time.Millisecond)
	view, err := ex.GetStatus(id)
	if err != nil || view.Status != agent.StatusRunning {
		t.Fatalf("failed sample must leave the agent running, got %v %v", view.Status, err)
	}

	close(fb.release)
}
