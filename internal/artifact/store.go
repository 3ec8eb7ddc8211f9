// Package artifact persists per-agent progress, result, and error records
// as JSON files under a root directory. The executor treats the contents as
// opaque beyond their existence and path; long-term persistence belongs to
// an external checkpoint store.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File names inside each agent's artifact directory.
const (
	ProgressFile   = "progress.json"
	ResultFile     = "result.json"
	ErrorFile      = "error.json"
	DescriptorFile = "descriptor.json"
)

// ProgressRecord is written on every progress report.
type ProgressRecord struct {
	AgentID   string    `json:"agent_id"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ResultRecord is written once on successful completion.
type ResultRecord struct {
	AgentID   string    `json:"agent_id"`
	Output    string    `json:"output,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorRecord is written once on failure, crash, or forced termination.
type ErrorRecord struct {
	AgentID   string    `json:"agent_id"`
	Error     string    `json:"error"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store writes and sweeps agent artifacts under a root directory.
type Store struct {
	root string
}

// NewStore creates the root directory if needed and returns a Store.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the artifact directory for one agent, creating it if needed.
func (s *Store) Dir(agentID string) (string, error) {
	dir := filepath.Join(s.root, agentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact dir %s: %w", agentID, err)
	}
	return dir, nil
}

// WriteProgress persists the progress record for an agent.
func (s *Store) WriteProgress(agentID string, rec ProgressRecord) error {
	_, err := s.write(agentID, ProgressFile, rec)
	return err
}

// WriteResult persists the result record and returns its path.
func (s *Store) WriteResult(agentID string, rec ResultRecord) (string, error) {
	return s.write(agentID, ResultFile, rec)
}

// WriteError persists the error record and returns its path.
func (s *Store) WriteError(agentID string, rec ErrorRecord) (string, error) {
	return s.write(agentID, ErrorFile, rec)
}

// ReadProgress loads the latest progress record for an agent.
// ok is false when no progress has been written yet.
func (s *Store) ReadProgress(agentID string) (ProgressRecord, bool, error) {
	var rec ProgressRecord
	ok, err := s.read(agentID, ProgressFile, &rec)
	return rec, ok, err
}

// ReadResult loads the result record for an agent.
func (s *Store) ReadResult(agentID string) (ResultRecord, bool, error) {
	var rec ResultRecord
	ok, err := s.read(agentID, ResultFile, &rec)
	return rec, ok, err
}

// ReadError loads the error record for an agent.
func (s *Store) ReadError(agentID string) (ErrorRecord, bool, error) {
	var rec ErrorRecord
	ok, err := s.read(agentID, ErrorFile, &rec)
	return rec, ok, err
}

// Sweep removes agent directories whose newest file is older than maxAge.
// Returns the number of directories removed. Individual failures are
// collected, not fatal; the cleanup loop logs and continues.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("sweep read root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		if newestModTime(dir).After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", entry.Name(), err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// newestModTime returns the most recent modification time of the directory
// or any file directly inside it.
func newestModTime(dir string) time.Time {
	newest := time.Time{}
	if info, err := os.Stat(dir); err == nil {
		newest = info.ModTime()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return newest
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest
}

func (s *Store) write(agentID, name string, v any) (string, error) {
	dir, err := s.Dir(agentID)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (s *Store) read(agentID, name string, v any) (bool, error) {
	path := filepath.Join(s.root, agentID, name)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from the store root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}
