// agentforge-worker is the fixed entry point for process-backend units. The
// executor writes a task descriptor and launches this binary; the worker
// deserializes the descriptor, dispatches through the unit registry, and
// reports progress and outcome as artifacts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Strob0t/AgentForge/internal/artifact"
	"github.com/Strob0t/AgentForge/internal/logger"
	"github.com/Strob0t/AgentForge/internal/port/unit"

	_ "github.com/Strob0t/AgentForge/internal/unit/echo"
)

func main() {
	descriptorPath := flag.String("descriptor", "", "path to the task descriptor JSON")
	artifactDir := flag.String("artifact-dir", "", "artifact store root directory")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("service", "agentforge-worker")
	slog.SetDefault(log)

	if err := run(*descriptorPath, *artifactDir); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(descriptorPath, artifactDir string) error {
	if descriptorPath == "" || artifactDir == "" {
		return fmt.Errorf("--descriptor and --artifact-dir are required")
	}

	data, err := os.ReadFile(descriptorPath) //nolint:gosec // G304: path is passed by the executor
	if err != nil {
		return fmt.Errorf("read descriptor: %w", err)
	}
	var req unit.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse descriptor: %w", err)
	}

	store, err := artifact.NewStore(artifactDir)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}

	runner, err := unit.New(req.Class, nil)
	if err != nil {
		writeFailure(store, req.AgentID, err)
		return err
	}

	// SIGTERM from the executor means terminate; cancellation flows to the
	// unit through its context. SIGSTOP/SIGCONT never reach us.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithAgentID(ctx, req.AgentID)
	slog.Info("unit starting", "agent_id", req.AgentID, "class", req.Class)

	rep := &fileReporter{store: store, req: req}
	res, runErr := runner.Run(ctx, req, rep)
	if runErr != nil {
		writeFailure(store, req.AgentID, runErr)
		return runErr
	}

	if _, err := store.WriteResult(req.AgentID, artifact.ResultRecord{
		AgentID:   req.AgentID,
		Output:    res.Output,
		Timestamp: time.Now(),
	}); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	slog.Info("unit finished", "agent_id", req.AgentID, "class", req.Class)
	return nil
}

func writeFailure(store *artifact.Store, agentID string, runErr error) {
	if _, err := store.WriteError(agentID, artifact.ErrorRecord{
		AgentID:   agentID,
		Error:     "execution failure",
		Detail:    runErr.Error(),
		Timestamp: time.Now(),
	}); err != nil {
		slog.Error("write error record failed", "agent_id", agentID, "error", err)
	}
}

// fileReporter persists progress reports as artifacts; the executor's
// monitor loop folds them into the record table.
type fileReporter struct {
	store *artifact.Store
	req   unit.Request
}

func (r *fileReporter) Progress(_ context.Context, fraction float64, message string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	if err := r.store.WriteProgress(r.req.AgentID, artifact.ProgressRecord{
		AgentID:   r.req.AgentID,
		Progress:  fraction,
		Message:   message,
		Status:    "running",
		Timestamp: time.Now(),
	}); err != nil {
		slog.Warn("progress write failed", "agent_id", r.req.AgentID, "error", err)
	}
}
