// Package unit defines the unit-of-work port: the Runner contract and the
// class-tag registry used for data-driven dispatch.
package unit

import (
	"context"
	"encoding/json"
)

// Request carries the opaque task description to a Runner.
type Request struct {
	AgentID string          `json:"agent_id"`
	Class   string          `json:"class"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reporter lets a running unit publish progress without knowing who listens.
// Implementations must be safe for use from the unit's own goroutine.
type Reporter interface {
	// Progress records completion in [0, 1] with an optional message.
	// It also refreshes the agent's heartbeat.
	Progress(ctx context.Context, fraction float64, message string)
}

// Result is the unit's declared output on success.
type Result struct {
	Output string `json:"output,omitempty"`
}

// Runner is one kind of work. The executor is oblivious to what a Runner
// actually computes; it only observes the error and the reported progress.
type Runner interface {
	Run(ctx context.Context, req Request, rep Reporter) (Result, error)
}
