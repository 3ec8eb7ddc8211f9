// Package executor coordinates agent lifecycles: capacity admission, backend
// dispatch, completion watching, resource enforcement, and cleanup. All table
// mutation goes through the executor's lock; status reads are snapshots and
// may be briefly stale.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/artifact"
	"github.com/Strob0t/AgentForge/internal/bus"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/event"
	"github.com/Strob0t/AgentForge/internal/domain/resource"
	"github.com/Strob0t/AgentForge/internal/port/backend"
	"github.com/Strob0t/AgentForge/internal/port/sampling"
	"github.com/Strob0t/AgentForge/internal/resilience"
)

// entry pairs a record with its backend handle. The handle is owned
// exclusively by the executor.
type entry struct {
	rec     *agent.Record
	backend backend.Backend
	handle  backend.Handle
	moved   atomic.Bool // set by whichever mover wins the active→completed race
}

// Statistics is the aggregate view returned by Statistics().
type Statistics struct {
	MaxParallel       int     `json:"max_parallel"`
	Active            int     `json:"active"`
	Completed         int     `json:"completed"`
	CapacityUsedRatio float64 `json:"capacity_used_ratio"`
	EventBusSize      int     `json:"event_bus_size"`
}

// Executor is the coordinating scheduler. One per process.
type Executor struct {
	cfg      config.Executor
	limits   config.Limits
	bus      *bus.Bus
	store    *artifact.Store
	backends map[agent.BackendKind]backend.Backend
	sampler  sampling.Sampler
	breaker  *resilience.Breaker
	limiter  *resilience.Limiter
	metrics  *otel.Metrics
	log      *slog.Logger

	sem *semaphore.Weighted

	mu        sync.RWMutex
	active    map[string]*entry
	completed []*agent.Record
	accepting bool

	wg   sync.WaitGroup
	stop chan struct{}

	now   func() time.Time // for testing
	newID func() string    // for testing
}

// Option customizes an Executor.
type Option func(*Executor)

// WithMetrics attaches metric instruments. Without it the executor records nothing.
func WithMetrics(m *otel.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithSampler sets the resource usage sampler used by the monitor loop.
func WithSampler(s sampling.Sampler) Option {
	return func(e *Executor) { e.sampler = s }
}

// WithLimiter sets the per-class spawn rate limiter.
func WithLimiter(l *resilience.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// New creates an Executor. Call Start before spawning; New does not launch
// any background loop.
func New(cfg config.Executor, limits config.Limits, b *bus.Bus, store *artifact.Store, backends []backend.Backend, log *slog.Logger, opts ...Option) *Executor {
	byKind := make(map[agent.BackendKind]backend.Backend, len(backends))
	for _, bk := range backends {
		byKind[bk.Kind()] = bk
	}

	e := &Executor{
		cfg:      cfg,
		limits:   limits,
		bus:      b,
		store:    store,
		backends: byKind,
		breaker:  resilience.NewBreaker(5, 30*time.Second),
		log:      log,
		sem:      semaphore.NewWeighted(int64(cfg.MaxParallel)),
		active:   make(map[string]*entry),
		stop:     make(chan struct{}),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithBreaker replaces the circuit breaker guarding backend starts.
func WithBreaker(b *resilience.Breaker) Option {
	return func(e *Executor) { e.breaker = b }
}

// Start launches the monitor and cleanup loops and blocks until both have
// signaled readiness. Only then does the executor accept spawns, so there is
// no window where an agent runs unmonitored.
func (e *Executor) Start(ctx context.Context) error {
	monitorReady := make(chan struct{})
	cleanupReady := make(chan struct{})

	e.wg.Add(2)
	go e.monitorLoop(monitorReady)
	go e.cleanupLoop(cleanupReady)

	for _, ready := range []chan struct{}{monitorReady, cleanupReady} {
		select {
		case <-ready:
		case <-ctx.Done():
			return fmt.Errorf("executor start: %w", ctx.Err())
		}
	}

	e.mu.Lock()
	e.accepting = true
	e.mu.Unlock()

	e.log.Info("executor started", "max_parallel", e.cfg.MaxParallel)
	return nil
}

// Spawn admits a new agent. It returns as soon as the record is in the
// active table; the backend is started asynchronously and the caller is
// never blocked on the unit's execution.
func (e *Executor) Spawn(ctx context.Context, unitClass string, payload []byte, limits resource.Limits, kind agent.BackendKind) (string, error) {
	e.mu.RLock()
	accepting := e.accepting
	e.mu.RUnlock()
	if !accepting {
		return "", domain.ErrShuttingDown
	}

	bk, ok := e.backends[kind]
	if !ok {
		return "", fmt.Errorf("backend %q: %w", kind, domain.ErrUnsupportedOperation)
	}

	if e.limiter != nil && !e.limiter.Allow(unitClass) {
		if e.metrics != nil {
			e.metrics.SpawnRejected.Add(ctx, 1)
		}
		return "", fmt.Errorf("unit class %q: %w", unitClass, domain.ErrSpawnThrottled)
	}

	if !e.sem.TryAcquire(1) {
		if e.metrics != nil {
			e.metrics.SpawnRejected.Add(ctx, 1)
		}
		return "", domain.ErrCapacityExceeded
	}

	now := e.now()
	rec := &agent.Record{
		ID:            e.newID(),
		UnitClass:     unitClass,
		Backend:       kind,
		Payload:       payload,
		Status:        agent.StatusSpawning,
		Limits:        resource.Cap(resource.Merge(e.limits.Default, limits), e.limits.Ceiling),
		CreatedAt:     now,
		LastHeartbeat: now,
	}
	ent := &entry{rec: rec, backend: bk}

	e.mu.Lock()
	e.active[rec.ID] = ent
	e.mu.Unlock()

	// Synchronous so the spawned event is on the bus before the caller
	// observes the id.
	e.bus.Publish(event.Message{
		AgentID: rec.ID,
		Type:    event.TypeAgentSpawned,
		Data:    map[string]string{"unit_class": unitClass, "backend": string(kind)},
	})
	if e.metrics != nil {
		e.metrics.AgentsSpawned.Add(ctx, 1)
	}

	e.wg.Add(1)
	go e.launch(ent, now)

	e.log.Info("agent spawned", "agent_id", rec.ID, "unit_class", unitClass, "backend", kind)
	return rec.ID, nil
}

// launch starts the backend for an admitted record and hands off to the
// completion watcher. Runs on its own goroutine.
func (e *Executor) launch(ent *entry, admitted time.Time) {
	defer e.wg.Done()

	rec := ent.rec
	spec := backend.StartSpec{
		AgentID:     rec.ID,
		UnitClass:   rec.UnitClass,
		Payload:     rec.Payload,
		Limits:      rec.Limits,
		ArtifactDir: e.store.Root(),
	}

	var h backend.Handle
	err := e.breaker.Execute(func() error {
		var startErr error
		h, startErr = ent.backend.Start(context.Background(), spec)
		return startErr
	})
	if err != nil {
		e.log.Error("backend start failed", "agent_id", rec.ID, "error", err)
		e.finalize(ent, agent.StatusFailed, "spawn failure: "+err.Error())
		return
	}

	e.mu.Lock()
	ent.handle = h
	if agent.CanTransition(rec.Status, agent.StatusRunning) {
		rec.Status = agent.StatusRunning
		rec.StartedAt = e.now()
		rec.LastHeartbeat = rec.StartedAt
	}
	started := rec.Status == agent.StatusRunning
	e.mu.Unlock()

	if !started {
		// Terminated while still spawning; the terminator owns finalization.
		_ = ent.backend.Kill(context.Background(), h, true)
		return
	}

	e.bus.Publish(event.Message{AgentID: rec.ID, Type: event.TypeAgentStarted})
	if e.metrics != nil {
		e.metrics.SpawnLatency.Record(context.Background(), e.now().Sub(admitted).Seconds())
	}

	e.watch(ent)
}

// watch waits for backend termination and finalizes the record. A fault in
// the watcher itself marks the record crashed rather than taking down the
// scheduler.
func (e *Executor) watch(ent *entry) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("completion watcher panicked", "agent_id", ent.rec.ID, "panic", r)
			e.finalize(ent, agent.StatusCrashed, fmt.Sprintf("watcher fault: %v", r))
		}
	}()

	res, err := ent.backend.Wait(context.Background(), ent.handle)
	switch {
	case err == nil:
		e.mu.Lock()
		if res != nil {
			ent.rec.OutputRef = res.OutputRef
			ent.rec.Progress = 1
		}
		e.mu.Unlock()
		if res != nil && res.OutputRef == "" {
			// Goroutine units return output in-band; persist it so the
			// artifact surface is uniform across backends.
			if path, werr := e.store.WriteResult(ent.rec.ID, artifact.ResultRecord{
				AgentID:   ent.rec.ID,
				Output:    res.Detail,
				Timestamp: e.now(),
			}); werr == nil {
				e.mu.Lock()
				ent.rec.OutputRef = path
				e.mu.Unlock()
			}
		}
		e.finalize(ent, agent.StatusCompleted, "")
	case errors.Is(err, backend.ErrUnitPanic):
		e.finalize(ent, agent.StatusCrashed, err.Error())
	default:
		e.finalize(ent, agent.StatusFailed, err.Error())
	}
}

// finalize moves a record active→completed exactly once and publishes the
// terminal event. Returns false when another mover already won.
func (e *Executor) finalize(ent *entry, status agent.Status, detail string) bool {
	if !ent.moved.CompareAndSwap(false, true) {
		return false
	}

	rec := ent.rec
	now := e.now()

	e.mu.Lock()
	if agent.CanTransition(rec.Status, status) {
		rec.Status = status
	} else if !rec.Status.Terminal() {
		// Spawning records never complete; paused ones can only be killed.
		if rec.Status == agent.StatusPaused {
			rec.Status = agent.StatusTerminated
		} else {
			rec.Status = agent.StatusFailed
		}
	}
	rec.CompletedAt = &now
	if detail != "" {
		rec.ErrorDetail = detail
	}
	delete(e.active, rec.ID)
	e.completed = append(e.completed, rec)
	e.trimCompletedLocked()
	e.mu.Unlock()

	e.sem.Release(1)

	if detail != "" {
		if path, err := e.store.WriteError(rec.ID, artifact.ErrorRecord{
			AgentID:   rec.ID,
			Error:     string(rec.Status),
			Detail:    detail,
			Timestamp: now,
		}); err == nil {
			e.mu.Lock()
			rec.ErrorRef = path
			e.mu.Unlock()
		}
	}

	e.bus.Publish(event.Message{
		AgentID: rec.ID,
		Type:    terminalEventType(rec.Status),
		Data:    map[string]string{"status": string(rec.Status)},
	})
	e.recordTerminalMetrics(rec, now)

	e.log.Info("agent finalized", "agent_id", rec.ID, "status", rec.Status, "detail", detail)
	return true
}

func terminalEventType(s agent.Status) event.Type {
	switch s {
	case agent.StatusCompleted:
		return event.TypeAgentComplete
	case agent.StatusCrashed:
		return event.TypeAgentCrashed
	case agent.StatusTerminated:
		return event.TypeAgentKilled
	default:
		return event.TypeAgentFailed
	}
}

func (e *Executor) recordTerminalMetrics(rec *agent.Record, now time.Time) {
	if e.metrics == nil {
		return
	}
	ctx := context.Background()
	switch rec.Status {
	case agent.StatusCompleted:
		e.metrics.AgentsCompleted.Add(ctx, 1)
	case agent.StatusCrashed:
		e.metrics.AgentsCrashed.Add(ctx, 1)
	case agent.StatusFailed, agent.StatusTerminated:
		e.metrics.AgentsFailed.Add(ctx, 1)
	}
	if !rec.StartedAt.IsZero() {
		e.metrics.AgentDuration.Record(ctx, now.Sub(rec.StartedAt).Seconds())
	}
}

// trimCompletedLocked evicts the oldest completed records beyond the
// retention bound. Must be called with e.mu held.
func (e *Executor) trimCompletedLocked() {
	if e.cfg.CompletedRetention <= 0 {
		return
	}
	if excess := len(e.completed) - e.cfg.CompletedRetention; excess > 0 {
		e.completed = append(e.completed[:0:0], e.completed[excess:]...)
	}
}

// GetStatus returns the status projection for one agent from either table.
func (e *Executor) GetStatus(agentID string) (agent.StatusView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ent, ok := e.active[agentID]; ok {
		return ent.rec.View(), nil
	}
	for i := len(e.completed) - 1; i >= 0; i-- {
		if e.completed[i].ID == agentID {
			return e.completed[i].View(), nil
		}
	}
	return agent.StatusView{}, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
}

// GetAllStatus returns every active record plus a bounded window of the most
// recently completed ones.
func (e *Executor) GetAllStatus() map[string]agent.StatusView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]agent.StatusView, len(e.active)+e.cfg.CompletedWindow)
	for id, ent := range e.active {
		out[id] = ent.rec.View()
	}
	window := e.cfg.CompletedWindow
	if window <= 0 || window > len(e.completed) {
		window = len(e.completed)
	}
	for _, rec := range e.completed[len(e.completed)-window:] {
		out[rec.ID] = rec.View()
	}
	return out
}

// Pause suspends a running process-backend agent. Returns false when the
// agent is unknown, not running, or its backend cannot pause.
func (e *Executor) Pause(ctx context.Context, agentID string) bool {
	return e.signal(ctx, agentID, backend.SignalPause, agent.StatusRunning, agent.StatusPaused, event.TypeAgentPaused)
}

// Resume continues a paused agent. Returns false when the agent is unknown
// or not paused.
func (e *Executor) Resume(ctx context.Context, agentID string) bool {
	return e.signal(ctx, agentID, backend.SignalResume, agent.StatusPaused, agent.StatusRunning, event.TypeAgentResumed)
}

func (e *Executor) signal(ctx context.Context, agentID string, sig backend.Signal, from, to agent.Status, evType event.Type) bool {
	e.mu.RLock()
	ent, ok := e.active[agentID]
	var handle backend.Handle
	if ok {
		handle = ent.handle
	}
	e.mu.RUnlock()
	if !ok || handle == nil {
		return false
	}

	e.mu.Lock()
	if ent.rec.Status != from {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	if err := ent.backend.Signal(ctx, handle, sig); err != nil {
		if !errors.Is(err, domain.ErrUnsupportedOperation) {
			e.log.Error("signal failed", "agent_id", agentID, "signal", sig, "error", err)
		}
		return false
	}

	e.mu.Lock()
	// Re-check: the watcher may have finalized between signal and here.
	if ent.rec.Status != from || !agent.CanTransition(from, to) {
		e.mu.Unlock()
		return false
	}
	ent.rec.Status = to
	ent.rec.LastHeartbeat = e.now()
	e.mu.Unlock()

	e.bus.Publish(event.Message{AgentID: agentID, Type: evType})
	return true
}

// Terminate kills an active agent and moves it to the completed table with
// status terminated. Idempotent: a second call returns false.
func (e *Executor) Terminate(ctx context.Context, agentID string, force bool) bool {
	e.mu.RLock()
	ent, ok := e.active[agentID]
	e.mu.RUnlock()
	if !ok || ent.moved.Load() {
		return false
	}

	e.mu.RLock()
	handle := ent.handle
	e.mu.RUnlock()
	if handle != nil {
		if err := ent.backend.Kill(ctx, handle, force); err != nil {
			e.log.Error("kill failed", "agent_id", agentID, "force", force, "error", err)
		}
	}

	return e.finalize(ent, agent.StatusTerminated, "terminated by request")
}

// Statistics returns aggregate counters. Available even while individual
// agents are failing.
func (e *Executor) Statistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ratio := 0.0
	if e.cfg.MaxParallel > 0 {
		ratio = float64(len(e.active)) / float64(e.cfg.MaxParallel)
	}
	return Statistics{
		MaxParallel:       e.cfg.MaxParallel,
		Active:            len(e.active),
		Completed:         len(e.completed),
		CapacityUsedRatio: ratio,
		EventBusSize:      e.bus.Size(),
	}
}

// QueryEvents exposes the bus history for the status API.
func (e *Executor) QueryEvents(agentID string, limit int) []event.Message {
	return e.bus.Query(agentID, limit)
}

// Shutdown stops accepting spawns, waits up to the drain timeout for active
// agents to finish, then force-terminates stragglers. Safe to call once.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.accepting = false
	e.mu.Unlock()
	close(e.stop)

	e.log.Info("executor draining", "timeout", e.cfg.DrainTimeout)

	deadline := e.now().Add(e.cfg.DrainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
drain:
	for {
		e.mu.RLock()
		remaining := len(e.active)
		e.mu.RUnlock()
		if remaining == 0 {
			break
		}
		if e.now().After(deadline) {
			e.log.Warn("drain timeout, force-terminating stragglers", "remaining", remaining)
			break drain
		}
		select {
		case <-ctx.Done():
			break drain
		case <-ticker.C:
		}
	}

	e.mu.RLock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	for _, id := range ids {
		e.Terminate(context.Background(), id, true)
	}

	e.wg.Wait()
	e.log.Info("executor stopped")
	return nil
}

// Reporter returns the progress reporter for one agent, handed to goroutine
// backend units.
func (e *Executor) Reporter(agentID string) *Reporter {
	return &Reporter{e: e, agentID: agentID}
}

// Reporter records unit progress on the agent record, persists it, and
// publishes a progress event.
type Reporter struct {
	e       *Executor
	agentID string
}

// Progress records completion in [0, 1] and refreshes the heartbeat.
func (r *Reporter) Progress(_ context.Context, fraction float64, message string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	e := r.e
	e.mu.Lock()
	ent, ok := e.active[r.agentID]
	var status agent.Status
	if ok {
		ent.rec.Progress = fraction
		ent.rec.LastHeartbeat = e.now()
		status = ent.rec.Status
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	if err := e.store.WriteProgress(r.agentID, artifact.ProgressRecord{
		AgentID:   r.agentID,
		Progress:  fraction,
		Message:   message,
		Status:    string(status),
		Timestamp: e.now(),
	}); err != nil {
		e.log.Warn("progress write failed", "agent_id", r.agentID, "error", err)
	}

	e.bus.Publish(event.Message{
		AgentID: r.agentID,
		Type:    event.TypeAgentProgress,
		Data: map[string]string{
			"progress": fmt.Sprintf("%.3f", fraction),
			"message":  message,
		},
	})
}
