package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// agentIDKey is the context key for the agent ID.
var agentIDKey = contextKey{}

// WithAgentID returns a new context with the given agent ID stored.
// Watcher and backend goroutines carry it so every log line can be
// attributed to the agent that produced it.
func WithAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, agentIDKey, id)
}

// AgentID extracts the agent ID from the context.
// Returns an empty string if no agent ID is set.
func AgentID(ctx context.Context) string {
	id, _ := ctx.Value(agentIDKey).(string)
	return id
}
