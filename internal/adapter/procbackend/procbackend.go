// Package procbackend implements the isolated execution backend: each unit
// runs in its own worker process launched from a fixed entry point binary.
// A crashing unit cannot corrupt the executor, at the cost of process
// startup latency.
package procbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/Strob0t/AgentForge/internal/artifact"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/backend"
	"github.com/Strob0t/AgentForge/internal/port/unit"
)

// Backend launches worker processes.
type Backend struct {
	workerBinary string
	store        *artifact.Store
}

// New creates a process backend that spawns workerBinary and exchanges
// descriptors and results through the artifact store.
func New(workerBinary string, store *artifact.Store) *Backend {
	return &Backend{workerBinary: workerBinary, store: store}
}

// Kind identifies the execution strategy.
func (b *Backend) Kind() agent.BackendKind { return agent.BackendProcess }

type handle struct {
	agentID string
	dir     string
	cmd     *exec.Cmd
	logFile *os.File
}

// Pid returns the worker's OS process ID.
func (h *handle) Pid() (int, bool) {
	if h.cmd.Process == nil {
		return 0, false
	}
	return h.cmd.Process.Pid, true
}

// Start writes the task descriptor and launches the worker process. There
// is no per-spawn code generation: the worker is a fixed binary that
// deserializes the descriptor and dispatches through the unit registry.
// The process outlives the caller's context; only Kill terminates it.
func (b *Backend) Start(_ context.Context, spec backend.StartSpec) (backend.Handle, error) {
	dir, err := b.store.Dir(spec.AgentID)
	if err != nil {
		return nil, err
	}

	desc := unit.Request{
		AgentID: spec.AgentID,
		Class:   spec.UnitClass,
		Payload: spec.Payload,
	}
	data, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}
	descPath := filepath.Join(dir, artifact.DescriptorFile)
	if err := os.WriteFile(descPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write descriptor: %w", err)
	}

	logFile, err := os.Create(filepath.Join(dir, "worker.log")) //nolint:gosec // G304: path is built from the store root
	if err != nil {
		return nil, fmt.Errorf("create worker log: %w", err)
	}

	//nolint:gosec // G204: binary path comes from operator config, not user input
	cmd := exec.Command(b.workerBinary,
		"--descriptor", descPath,
		"--artifact-dir", b.store.Root(),
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}

	return &handle{agentID: spec.AgentID, dir: dir, cmd: cmd, logFile: logFile}, nil
}

// Wait reaps the worker process. On a zero exit it returns the result
// artifact reference; on failure it surfaces the worker's error record.
func (b *Backend) Wait(_ context.Context, bh backend.Handle) (*backend.Result, error) {
	h, err := asHandle(bh)
	if err != nil {
		return nil, err
	}

	waitErr := h.cmd.Wait()
	_ = h.logFile.Close()
	if waitErr == nil {
		res := &backend.Result{OutputRef: filepath.Join(h.dir, artifact.ResultFile)}
		if rec, ok, readErr := b.store.ReadResult(h.agentID); readErr == nil && ok {
			res.Detail = rec.Output
		}
		return res, nil
	}

	// Non-zero exit: prefer the worker's own error record over the raw
	// exit status.
	if rec, ok, readErr := b.store.ReadError(h.agentID); readErr == nil && ok {
		return nil, fmt.Errorf("%s: %w", rec.Error, waitErr)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return nil, fmt.Errorf("worker exited: %w", waitErr)
	}
	return nil, fmt.Errorf("wait worker: %w", waitErr)
}

// Kill terminates the worker process: SIGKILL when forced, SIGTERM
// otherwise. It returns once the signal is sent, not when the process dies.
func (b *Backend) Kill(_ context.Context, bh backend.Handle, force bool) error {
	h, err := asHandle(bh)
	if err != nil {
		return err
	}
	if h.cmd.Process == nil {
		return nil
	}

	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if err := h.cmd.Process.Signal(sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return fmt.Errorf("signal %s: %w", sig, err)
	}
	return nil
}

// Signal pauses or resumes the worker via OS stop/continue signaling.
func (b *Backend) Signal(_ context.Context, bh backend.Handle, sig backend.Signal) error {
	h, err := asHandle(bh)
	if err != nil {
		return err
	}
	if h.cmd.Process == nil {
		return errors.New("worker not started")
	}

	var osSig syscall.Signal
	switch sig {
	case backend.SignalPause:
		osSig = syscall.SIGSTOP
	case backend.SignalResume:
		osSig = syscall.SIGCONT
	default:
		return fmt.Errorf("unknown signal %d", sig)
	}

	if err := h.cmd.Process.Signal(osSig); err != nil {
		return fmt.Errorf("signal %s: %w", osSig, err)
	}
	return nil
}

func asHandle(bh backend.Handle) (*handle, error) {
	h, ok := bh.(*handle)
	if !ok {
		return nil, fmt.Errorf("procbackend: foreign handle %T", bh)
	}
	return h, nil
}
