// Package agent defines the agent Record entity and its lifecycle state machine.
package agent

import (
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/resource"
)

// Status represents the lifecycle state of an agent.
type Status string

const (
	StatusSpawning   Status = "spawning"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCrashed    Status = "crashed"
	StatusTerminated Status = "terminated"
)

// Terminal reports whether s is a final state. No transition leaves a
// terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCrashed, StatusTerminated:
		return true
	}
	return false
}

// transitions is the set of legal lifecycle moves. Terminal states have no
// outgoing edges.
var transitions = map[Status][]Status{
	StatusSpawning: {StatusRunning, StatusFailed, StatusTerminated},
	StatusRunning:  {StatusPaused, StatusCompleted, StatusFailed, StatusCrashed, StatusTerminated},
	StatusPaused:   {StatusRunning, StatusTerminated},
}

// CanTransition reports whether the move from → to is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BackendKind selects the execution strategy for an agent. It is a
// caller-supplied hint; the executor does not second-guess it.
type BackendKind string

const (
	// BackendProcess runs the unit in a separate OS process. Strong
	// isolation, pausable, higher startup latency.
	BackendProcess BackendKind = "process"
	// BackendGoroutine runs the unit as an in-process goroutine. Low
	// latency, cooperative cancellation only, no pause support.
	BackendGoroutine BackendKind = "goroutine"
)

// Record describes one spawned unit of work. The backend handle is owned
// exclusively by the executor and is not part of the record.
type Record struct {
	ID            string          `json:"id"`
	UnitClass     string          `json:"unit_class"`
	Backend       BackendKind     `json:"backend"`
	Payload       []byte          `json:"payload,omitempty"`
	Status        Status          `json:"status"`
	Limits        resource.Limits `json:"limits"`
	Progress      float64         `json:"progress"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     time.Time       `json:"started_at,omitzero"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	LastHeartbeat time.Time       `json:"last_heartbeat,omitzero"`
	OutputRef     string          `json:"output_ref,omitempty"`
	ErrorRef      string          `json:"error_ref,omitempty"`
	ErrorDetail   string          `json:"error_detail,omitempty"`
}

// StatusView is the read-only projection returned by status queries.
type StatusView struct {
	ID            string      `json:"id"`
	UnitClass     string      `json:"unit_class"`
	Backend       BackendKind `json:"backend"`
	Status        Status      `json:"status"`
	Progress      float64     `json:"progress"`
	CreatedAt     time.Time   `json:"created_at"`
	StartedAt     time.Time   `json:"started_at,omitzero"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	LastHeartbeat time.Time   `json:"last_heartbeat,omitzero"`
	OutputRef     string      `json:"output_ref,omitempty"`
	ErrorRef      string      `json:"error_ref,omitempty"`
	ErrorDetail   string      `json:"error_detail,omitempty"`
}

// View returns the status projection of the record.
func (r *Record) View() StatusView {
	return StatusView{
		ID:            r.ID,
		UnitClass:     r.UnitClass,
		Backend:       r.Backend,
		Status:        r.Status,
		Progress:      r.Progress,
		CreatedAt:     r.CreatedAt,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		LastHeartbeat: r.LastHeartbeat,
		OutputRef:     r.OutputRef,
		ErrorRef:      r.ErrorRef,
		ErrorDetail:   r.ErrorDetail,
	}
}
