// Package config provides hierarchical configuration loading for AgentForge.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/resource"
)

// Config holds all runtime configuration for the AgentForge daemon.
type Config struct {
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Executor Executor `yaml:"executor"`
	Limits   Limits   `yaml:"limits"`
	NATS     NATS     `yaml:"nats"`
	Breaker  Breaker  `yaml:"breaker"`
	Spawn    Spawn    `yaml:"spawn"`
	Cache    Cache    `yaml:"cache"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Executor holds capacity, loop-interval, and retention configuration.
type Executor struct {
	MaxParallel        int           `yaml:"max_parallel"`        // Capacity ceiling for concurrently active agents (default: 8)
	MonitorInterval    time.Duration `yaml:"monitor_interval"`    // Resource monitor tick (default: 5s)
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`    // Cleanup loop tick (default: 5m)
	CompletedRetention int           `yaml:"completed_retention"` // Completed records kept before eviction (default: 100)
	CompletedWindow    int           `yaml:"completed_window"`    // Completed records included in GetAllStatus (default: 10)
	BusHistory         int           `yaml:"bus_history"`         // Event bus ring buffer size (default: 1000)
	ArtifactDir        string        `yaml:"artifact_dir"`        // Root directory for progress/result artifacts
	ArtifactMaxAge     time.Duration `yaml:"artifact_max_age"`    // Artifacts older than this are swept (default: 24h)
	DrainTimeout       time.Duration `yaml:"drain_timeout"`       // Graceful shutdown wait before force-kill (default: 30s)
	WorkerBinary       string        `yaml:"worker_binary"`       // Path to the agentforge-worker executable
	HandlerBudget      time.Duration `yaml:"handler_budget"`      // Per-subscriber publish budget (default: 100ms)
}

// Limits holds the default and ceiling resource budgets applied to spawns.
type Limits struct {
	Default resource.Limits `yaml:"default"`
	Ceiling resource.Limits `yaml:"ceiling"`
}

// NATS holds the optional external event bridge configuration.
// An empty URL disables the bridge.
type NATS struct {
	URL string `yaml:"url"`
}

// Breaker holds circuit breaker configuration for backend starts.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Spawn holds the per-unit-class spawn limiter configuration.
type Spawn struct {
	PerClassPerMinute float64 `yaml:"per_class_per_minute"`
	Burst             int     `yaml:"burst"`
}

// Cache holds the status snapshot cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8090",
			CORSOrigin: "http://localhost:3000",
		},
		Logging: Logging{
			Level:   "info",
			Service: "agentforge",
		},
		Executor: Executor{
			MaxParallel:        8,
			MonitorInterval:    5 * time.Second,
			CleanupInterval:    5 * time.Minute,
			CompletedRetention: 100,
			CompletedWindow:    10,
			BusHistory:         1000,
			ArtifactDir:        "/tmp/agentforge",
			ArtifactMaxAge:     24 * time.Hour,
			DrainTimeout:       30 * time.Second,
			WorkerBinary:       "agentforge-worker",
			HandlerBudget:      100 * time.Millisecond,
		},
		Limits: Limits{
			Default: resource.Limits{
				MaxMemoryBytes: 512 << 20,
				MaxCPUPercent:  90,
				MaxDuration:    time.Hour,
				MaxDiskBytes:   1 << 30,
			},
			Ceiling: resource.Limits{
				MaxMemoryBytes: 4 << 30,
				MaxCPUPercent:  400,
				MaxDuration:    8 * time.Hour,
				MaxDiskBytes:   16 << 30,
			},
		},
		NATS: NATS{
			URL: "",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Spawn: Spawn{
			PerClassPerMinute: 60,
			Burst:             10,
		},
		Cache: Cache{
			MaxSizeMB: 16,
			TTL:       time.Second,
		},
	}
}
