// Package http exposes the status and control API over chi.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/AgentForge/internal/adapter/ristretto"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/resource"
	"github.com/Strob0t/AgentForge/internal/executor"
	"github.com/Strob0t/AgentForge/internal/port/unit"
)

const allStatusCacheKey = "status:all"

// Handlers carries the dependencies of the API surface.
type Handlers struct {
	exec     *executor.Executor
	cache    *ristretto.Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// NewHandlers creates the API handler set. cache may be nil to disable
// snapshot caching.
func NewHandlers(exec *executor.Executor, cache *ristretto.Cache, cacheTTL time.Duration, log *slog.Logger) *Handlers {
	return &Handlers{exec: exec, cache: cache, cacheTTL: cacheTTL, log: log}
}

type spawnRequest struct {
	UnitClass string          `json:"unit_class"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Backend   string          `json:"backend,omitempty"`
	Limits    resource.Limits `json:"limits,omitempty"`
}

type spawnResponse struct {
	AgentID string `json:"agent_id"`
}

// SpawnAgent admits a new agent. Returns 202 with the agent id; the unit's
// execution is not awaited.
func (h *Handlers) SpawnAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[spawnRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.UnitClass, "unit_class") {
		return
	}

	kind := agent.BackendKind(req.Backend)
	if kind == "" {
		kind = agent.BackendGoroutine
	}

	id, err := h.exec.Spawn(r.Context(), req.UnitClass, req.Payload, req.Limits, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, spawnResponse{AgentID: id})
}

// GetAgent returns the status projection of one agent.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	view, err := h.exec.GetStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListAgents returns all active agents plus the recent completed window. The
// rendered snapshot is cached briefly so hot polling stays cheap.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		if data, ok, _ := h.cache.Get(r.Context(), allStatusCacheKey); ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(data)
			return
		}
	}

	all := h.exec.GetAllStatus()
	data, err := json.Marshal(all)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if h.cache != nil {
		_ = h.cache.Set(r.Context(), allStatusCacheKey, data, h.cacheTTL)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

type controlResponse struct {
	OK bool `json:"ok"`
}

// PauseAgent suspends a running process-backend agent.
func (h *Handlers) PauseAgent(w http.ResponseWriter, r *http.Request) {
	ok := h.exec.Pause(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusConflict, "agent cannot be paused")
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{OK: true})
}

// ResumeAgent continues a paused agent.
func (h *Handlers) ResumeAgent(w http.ResponseWriter, r *http.Request) {
	ok := h.exec.Resume(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusConflict, "agent cannot be resumed")
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{OK: true})
}

// TerminateAgent kills an active agent. A repeat call returns 409.
func (h *Handlers) TerminateAgent(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	ok := h.exec.Terminate(r.Context(), chi.URLParam(r, "id"), force)
	if !ok {
		writeError(w, http.StatusConflict, "agent is not active")
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{OK: true})
}

// Stats returns aggregate executor statistics.
func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.exec.Statistics())
}

// ListEvents returns retained bus history, optionally filtered by agent.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.exec.QueryEvents(agentID, limit))
}

// ListUnits returns the registered unit classes.
func (h *Handlers) ListUnits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"units": unit.Available()})
}

// Healthz is the liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
