package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/event"
)

// monitorLoop periodically samples active agents and enforces their resource
// budgets. Enforcement latency is bounded by the tick interval, not
// instantaneous. The loop logs its own failures and never escalates them.
func (e *Executor) monitorLoop(ready chan<- struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.MonitorInterval)
	defer ticker.Stop()
	close(ready)

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.monitorTick()
		}
	}
}

// monitorTick inspects every running agent once.
func (e *Executor) monitorTick() {
	e.mu.RLock()
	entries := make([]*entry, 0, len(e.active))
	for _, ent := range e.active {
		entries = append(entries, ent)
	}
	e.mu.RUnlock()

	for _, ent := range entries {
		e.inspect(ent)
	}
}

func (e *Executor) inspect(ent *entry) {
	e.mu.RLock()
	rec := ent.rec
	status := rec.Status
	limits := rec.Limits
	startedAt := rec.StartedAt
	handle := ent.handle
	e.mu.RUnlock()

	if status != agent.StatusRunning || handle == nil {
		return
	}

	// Duration is enforceable for both backends.
	if limits.MaxDuration > 0 && e.now().Sub(startedAt) > limits.MaxDuration {
		e.killForLimit(ent, "max_duration", fmt.Sprintf("ran longer than %s", limits.MaxDuration))
		return
	}

	// Memory and CPU need a pid; goroutine agents share the executor's
	// process and get duration-only enforcement.
	pid, ok := handle.Pid()
	if !ok || e.sampler == nil {
		e.refreshFromProgress(ent)
		return
	}

	usage, err := e.sampler.Sample(context.Background(), pid)
	if err != nil {
		// The process likely exited between the snapshot and the sample;
		// the watcher will finalize it.
		e.log.Debug("resource sample failed", "agent_id", rec.ID, "pid", pid, "error", err)
		return
	}

	if limits.MaxMemoryBytes > 0 && usage.RSSBytes > limits.MaxMemoryBytes {
		e.killForLimit(ent, "max_memory_bytes",
			fmt.Sprintf("rss %d bytes over limit %d", usage.RSSBytes, limits.MaxMemoryBytes))
		return
	}

	// CPU breaches warn but never kill; only memory and duration are hard limits.
	if limits.MaxCPUPercent > 0 && usage.CPUPercent > limits.MaxCPUPercent {
		e.bus.Publish(event.Message{
			AgentID: rec.ID,
			Type:    event.TypeHighCPU,
			Data: map[string]string{
				"cpu_percent": fmt.Sprintf("%.1f", usage.CPUPercent),
				"limit":       fmt.Sprintf("%.1f", limits.MaxCPUPercent),
			},
		})
		e.log.Warn("cpu limit exceeded", "agent_id", rec.ID, "cpu_percent", usage.CPUPercent, "limit", limits.MaxCPUPercent)
	}

	e.refreshFromProgress(ent)
}

// killForLimit hard-kills an agent for a budget breach and finalizes it as
// terminated.
func (e *Executor) killForLimit(ent *entry, limit, detail string) {
	rec := ent.rec
	e.log.Warn("resource limit exceeded", "agent_id", rec.ID, "limit", limit, "detail", detail)

	e.mu.RLock()
	handle := ent.handle
	e.mu.RUnlock()
	if handle != nil {
		if err := ent.backend.Kill(context.Background(), handle, true); err != nil {
			e.log.Error("limit kill failed", "agent_id", rec.ID, "error", err)
		}
	}

	e.bus.Publish(event.Message{
		AgentID: rec.ID,
		Type:    event.TypeLimitExceeded,
		Data:    map[string]string{"limit": limit, "detail": detail},
	})
	if e.metrics != nil {
		e.metrics.LimitKills.Add(context.Background(), 1)
	}

	e.finalize(ent, agent.StatusTerminated, "resource limit exceeded: "+detail)
}

// refreshFromProgress pulls the worker's latest progress artifact into the
// record. Goroutine units report in-process through the Reporter; process
// workers can only write files.
func (e *Executor) refreshFromProgress(ent *entry) {
	if ent.rec.Backend != agent.BackendProcess {
		return
	}

	prog, ok, err := e.store.ReadProgress(ent.rec.ID)
	if err != nil {
		e.log.Debug("progress read failed", "agent_id", ent.rec.ID, "error", err)
		return
	}
	if !ok {
		return
	}

	e.mu.Lock()
	if prog.Timestamp.After(ent.rec.LastHeartbeat) {
		ent.rec.Progress = prog.Progress
		ent.rec.LastHeartbeat = prog.Timestamp
	}
	e.mu.Unlock()
}
