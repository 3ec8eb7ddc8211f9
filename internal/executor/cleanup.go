package executor

import (
	"time"
)

// cleanupLoop periodically trims the completed table and sweeps stale
// artifacts. Failures are logged and never escalated; this loop must outlive
// any individual fault.
func (e *Executor) cleanupLoop(ready chan<- struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()
	close(ready)

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.cleanupTick()
		}
	}
}

func (e *Executor) cleanupTick() {
	e.mu.Lock()
	before := len(e.completed)
	e.trimCompletedLocked()
	trimmed := before - len(e.completed)
	e.mu.Unlock()

	removed, err := e.store.Sweep(e.cfg.ArtifactMaxAge)
	if err != nil {
		e.log.Warn("artifact sweep incomplete", "error", err)
	}

	if e.limiter != nil {
		e.limiter.Prune(10 * time.Minute)
	}

	if trimmed > 0 || removed > 0 {
		e.log.Info("cleanup pass", "records_trimmed", trimmed, "artifacts_removed", removed)
	}
}
