package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentforge"

// Metrics holds all AgentForge metric instruments.
type Metrics struct {
	AgentsSpawned   metric.Int64Counter
	AgentsCompleted metric.Int64Counter
	AgentsFailed    metric.Int64Counter
	AgentsCrashed   metric.Int64Counter
	LimitKills      metric.Int64Counter
	SpawnRejected   metric.Int64Counter
	SpawnLatency    metric.Float64Histogram
	AgentDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.AgentsSpawned, err = meter.Int64Counter("agentforge.agents.spawned",
		metric.WithDescription("Number of agents spawned"))
	if err != nil {
		return nil, err
	}

	m.AgentsCompleted, err = meter.Int64Counter("agentforge.agents.completed",
		metric.WithDescription("Number of agents that completed successfully"))
	if err != nil {
		return nil, err
	}

	m.AgentsFailed, err = meter.Int64Counter("agentforge.agents.failed",
		metric.WithDescription("Number of agents that reported failure"))
	if err != nil {
		return nil, err
	}

	m.AgentsCrashed, err = meter.Int64Counter("agentforge.agents.crashed",
		metric.WithDescription("Number of agents that died from an unhandled fault"))
	if err != nil {
		return nil, err
	}

	m.LimitKills, err = meter.Int64Counter("agentforge.limit.kills",
		metric.WithDescription("Number of agents killed for breaching a resource limit"))
	if err != nil {
		return nil, err
	}

	m.SpawnRejected, err = meter.Int64Counter("agentforge.spawn.rejected",
		metric.WithDescription("Number of spawns rejected at capacity or by rate limiting"))
	if err != nil {
		return nil, err
	}

	m.SpawnLatency, err = meter.Float64Histogram("agentforge.spawn.latency_seconds",
		metric.WithDescription("Time from spawn request to backend start"))
	if err != nil {
		return nil, err
	}

	m.AgentDuration, err = meter.Float64Histogram("agentforge.agent.duration_seconds",
		metric.WithDescription("Agent wall-clock duration from start to terminal state"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
