package gobackend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/port/backend"
	"github.com/Strob0t/AgentForge/internal/port/unit"
)

func init() {
	unit.Register("gobackend-ok", func(_ map[string]string) (unit.Runner, error) {
		return runnerFunc(func(_ context.Context, _ unit.Request, _ unit.Reporter) (unit.Result, error) {
			return unit.Result{Output: "ok"}, nil
		}), nil
	})
	unit.Register("gobackend-fail", func(_ map[string]string) (unit.Runner, error) {
		return runnerFunc(func(_ context.Context, _ unit.Request, _ unit.Reporter) (unit.Result, error) {
			return unit.Result{}, errors.New("boom")
		}), nil
	})
	unit.Register("gobackend-panic", func(_ map[string]string) (unit.Runner, error) {
		return runnerFunc(func(_ context.Context, _ unit.Request, _ unit.Reporter) (unit.Result, error) {
			panic("unexpected nil")
		}), nil
	})
	unit.Register("gobackend-block", func(_ map[string]string) (unit.Runner, error) {
		return runnerFunc(func(ctx context.Context, _ unit.Request, _ unit.Reporter) (unit.Result, error) {
			<-ctx.Done()
			return unit.Result{}, ctx.Err()
		}), nil
	})
	unit.Register("gobackend-report", func(_ map[string]string) (unit.Runner, error) {
		return runnerFunc(func(ctx context.Context, _ unit.Request, rep unit.Reporter) (unit.Result, error) {
			rep.Progress(ctx, 0.5, "halfway")
			return unit.Result{Output: "done"}, nil
		}), nil
	})
}

type runnerFunc func(ctx context.Context, req unit.Request, rep unit.Reporter) (unit.Result, error)

func (f runnerFunc) Run(ctx context.Context, req unit.Request, rep unit.Reporter) (unit.Result, error) {
	return f(ctx, req, rep)
}

type captureReporter struct {
	mu   sync.Mutex
	last string
}

func (r *captureReporter) Progress(_ context.Context, _ float64, message string) {
	r.mu.Lock()
	r.last = message
	r.mu.Unlock()
}

func TestStartAndWaitSuccess(t *testing.T) {
	b := New(nil)

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "gobackend-ok"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := b.Wait(context.Background(), h)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Detail != "ok" {
		t.Fatalf("expected output ok, got %q", res.Detail)
	}
}

func TestWaitReturnsUnitError(t *testing.T) {
	b := New(nil)

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "gobackend-fail"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := b.Wait(context.Background(), h); err == nil || errors.Is(err, backend.ErrUnitPanic) {
		t.Fatalf("expected a plain unit error, got %v", err)
	}
}

func TestPanicIsWrapped(t *testing.T) {
	b := New(nil)

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "gobackend-panic"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := b.Wait(context.Background(), h); !errors.Is(err, backend.ErrUnitPanic) {
		t.Fatalf("expected ErrUnitPanic, got %v", err)
	}
}

func TestKillCancelsBlockedUnit(t *testing.T) {
	b := New(nil)

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "gobackend-block"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := b.Kill(context.Background(), h, true); err != nil {
		t.Fatalf("kill: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.Wait(context.Background(), h)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked unit never observed cancellation")
	}
}

func TestUnknownClassFailsStart(t *testing.T) {
	b := New(nil)

	if _, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "no-such-class"}); err == nil {
		t.Fatal("expected error for unknown unit class")
	}
}

func TestSignalUnsupported(t *testing.T) {
	b := New(nil)

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "gobackend-ok"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := b.Wait(context.Background(), h); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if err := b.Signal(context.Background(), h, backend.SignalPause); !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestReporterFactoryIsUsed(t *testing.T) {
	rep := &captureReporter{}
	b := New(func(_ string) unit.Reporter { return rep })

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "gobackend-report"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := b.Wait(context.Background(), h); err != nil {
		t.Fatalf("wait: %v", err)
	}

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.last != "halfway" {
		t.Fatalf("expected reporter to receive progress, got %q", rep.last)
	}
}

func TestHandleReportsNoPid(t *testing.T) {
	b := New(nil)

	h, err := b.Start(context.Background(), backend.StartSpec{AgentID: "a1", UnitClass: "gobackend-ok"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if pid, ok := h.Pid(); ok || pid != 0 {
		t.Fatalf("goroutine handle must not report a pid, got %d %v", pid, ok)
	}
	_, _ = b.Wait(context.Background(), h)
}
