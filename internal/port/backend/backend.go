// Package backend defines the execution backend port shared by the
// isolated-process and goroutine strategies.
package backend

import (
	"context"
	"errors"

	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/resource"
)

// ErrUnitPanic marks a unit that died from an unhandled fault rather than a
// reported failure. The completion watcher classifies it as a crash.
var ErrUnitPanic = errors.New("unit panic")

// StartSpec describes one unit execution handed to a backend.
type StartSpec struct {
	AgentID     string
	UnitClass   string
	Payload     []byte
	Limits      resource.Limits
	ArtifactDir string
}

// Handle is an opaque reference to a started unit. It is owned exclusively
// by the executor; no other component touches it.
type Handle interface {
	// Pid returns the OS process ID when the unit runs in its own process.
	// The goroutine backend reports ok=false.
	Pid() (pid int, ok bool)
}

// Signal is a control request delivered to a running unit.
type Signal int

const (
	SignalPause Signal = iota
	SignalResume
)

// Result is what a backend reports when a unit finishes successfully.
type Result struct {
	OutputRef string
	Detail    string
}

// Backend runs units and reports their termination. Both implementations
// honor the same contract: Start never blocks on the unit's execution,
// Wait suspends only its caller, Kill and Signal return without waiting
// for the unit to acknowledge.
type Backend interface {
	// Kind identifies the execution strategy.
	Kind() agent.BackendKind

	// Start launches the unit and returns a handle for it.
	Start(ctx context.Context, spec StartSpec) (Handle, error)

	// Wait blocks until the unit terminates. A nil error means the unit
	// signaled success; a non-nil error means it reported failure.
	Wait(ctx context.Context, h Handle) (*Result, error)

	// Kill terminates the unit. force requests immediate, non-cooperative
	// termination where the strategy supports it.
	Kill(ctx context.Context, h Handle, force bool) error

	// Signal delivers a pause or resume request. Backends without a
	// pausable primitive return domain.ErrUnsupportedOperation.
	Signal(ctx context.Context, h Handle, sig Signal) error
}
