// Package event defines the lifecycle messages carried on the event bus.
package event

import "time"

// Type identifies the kind of agent lifecycle event.
type Type string

const (
	TypeAgentSpawned  Type = "agent.spawned"
	TypeAgentStarted  Type = "agent.started"
	TypeAgentProgress Type = "agent.progress"
	TypeAgentPaused   Type = "agent.paused"
	TypeAgentResumed  Type = "agent.resumed"
	TypeAgentComplete Type = "agent.completed"
	TypeAgentFailed   Type = "agent.failed"
	TypeAgentCrashed  Type = "agent.crashed"
	TypeAgentKilled   Type = "agent.terminated"

	TypeLimitExceeded Type = "resource.limit_exceeded"
	TypeHighCPU       Type = "resource.high_cpu"
)

// Message is a single lifecycle notification. Messages for one agent are
// published in causal order; no ordering holds across agents.
type Message struct {
	AgentID   string            `json:"agent_id"`
	Type      Type              `json:"type"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
