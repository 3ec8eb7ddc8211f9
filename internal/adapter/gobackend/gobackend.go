// Package gobackend implements the lightweight execution backend: units run
// as goroutines inside the executor's process. Lowest startup latency, no
// fault isolation, cooperative cancellation only.
package gobackend

import (
	"context"
	"fmt"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/backend"
	"github.com/Strob0t/AgentForge/internal/port/unit"
)

// ReporterFactory builds the progress reporter handed to each unit.
// The executor supplies one that updates the record table and publishes
// progress events.
type ReporterFactory func(agentID string) unit.Reporter

// Backend runs units in-process.
type Backend struct {
	reporters ReporterFactory
}

// New creates a goroutine backend.
func New(reporters ReporterFactory) *Backend {
	return &Backend{reporters: reporters}
}

// Kind identifies the execution strategy.
func (b *Backend) Kind() agent.BackendKind { return agent.BackendGoroutine }

type handle struct {
	agentID string
	cancel  context.CancelFunc
	done    chan struct{}
	result  unit.Result
	err     error
}

// Pid reports no OS process: the unit shares the executor's.
func (h *handle) Pid() (int, bool) { return 0, false }

// Start resolves the unit class and launches it on a fresh goroutine. The
// unit's lifetime is detached from the caller's context; Kill cancels it.
func (b *Backend) Start(_ context.Context, spec backend.StartSpec) (backend.Handle, error) {
	runner, err := unit.New(spec.UnitClass, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve unit: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &handle{
		agentID: spec.AgentID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	var rep unit.Reporter
	if b.reporters != nil {
		rep = b.reporters(spec.AgentID)
	}

	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("%w: %v", backend.ErrUnitPanic, r)
			}
		}()
		h.result, h.err = runner.Run(runCtx, unit.Request{
			AgentID: spec.AgentID,
			Class:   spec.UnitClass,
			Payload: spec.Payload,
		}, rep)
	}()

	return h, nil
}

// Wait blocks until the unit's goroutine returns.
func (b *Backend) Wait(ctx context.Context, bh backend.Handle) (*backend.Result, error) {
	h, err := asHandle(bh)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}

	if h.err != nil {
		return nil, h.err
	}
	return &backend.Result{Detail: h.result.Output}, nil
}

// Kill cancels the unit's context. Termination is cooperative: the unit
// must observe cancellation, so resources are not guaranteed to be freed
// immediately even with force set.
func (b *Backend) Kill(_ context.Context, bh backend.Handle, _ bool) error {
	h, err := asHandle(bh)
	if err != nil {
		return err
	}
	h.cancel()
	return nil
}

// Signal rejects pause and resume: there is no externally pausable
// primitive for a goroutine.
func (b *Backend) Signal(_ context.Context, _ backend.Handle, _ backend.Signal) error {
	return domain.ErrUnsupportedOperation
}

func asHandle(bh backend.Handle) (*handle, error) {
	h, ok := bh.(*handle)
	if !ok {
		return nil, fmt.Errorf("gobackend: foreign handle %T", bh)
	}
	return h, nil
}
