package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTFORGE_CORS_ORIGIN")
	setString(&cfg.Logging.Level, "AGENTFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTFORGE_LOG_ASYNC")

	setInt(&cfg.Executor.MaxParallel, "AGENTFORGE_MAX_PARALLEL")
	setDuration(&cfg.Executor.MonitorInterval, "AGENTFORGE_MONITOR_INTERVAL")
	setDuration(&cfg.Executor.CleanupInterval, "AGENTFORGE_CLEANUP_INTERVAL")
	setInt(&cfg.Executor.CompletedRetention, "AGENTFORGE_COMPLETED_RETENTION")
	setInt(&cfg.Executor.CompletedWindow, "AGENTFORGE_COMPLETED_WINDOW")
	setInt(&cfg.Executor.BusHistory, "AGENTFORGE_BUS_HISTORY")
	setString(&cfg.Executor.ArtifactDir, "AGENTFORGE_ARTIFACT_DIR")
	setDuration(&cfg.Executor.ArtifactMaxAge, "AGENTFORGE_ARTIFACT_MAX_AGE")
	setDuration(&cfg.Executor.DrainTimeout, "AGENTFORGE_DRAIN_TIMEOUT")
	setString(&cfg.Executor.WorkerBinary, "AGENTFORGE_WORKER_BINARY")
	setDuration(&cfg.Executor.HandlerBudget, "AGENTFORGE_HANDLER_BUDGET")

	setInt64(&cfg.Limits.Default.MaxMemoryBytes, "AGENTFORGE_LIMIT_MEMORY_BYTES")
	setFloat64(&cfg.Limits.Default.MaxCPUPercent, "AGENTFORGE_LIMIT_CPU_PERCENT")
	setDuration(&cfg.Limits.Default.MaxDuration, "AGENTFORGE_LIMIT_DURATION")
	setInt64(&cfg.Limits.Default.MaxDiskBytes, "AGENTFORGE_LIMIT_DISK_BYTES")

	setString(&cfg.NATS.URL, "NATS_URL")

	setInt(&cfg.Breaker.MaxFailures, "AGENTFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTFORGE_BREAKER_TIMEOUT")

	setFloat64(&cfg.Spawn.PerClassPerMinute, "AGENTFORGE_SPAWN_PER_CLASS_PER_MINUTE")
	setInt(&cfg.Spawn.Burst, "AGENTFORGE_SPAWN_BURST")

	setInt64(&cfg.Cache.MaxSizeMB, "AGENTFORGE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "AGENTFORGE_CACHE_TTL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Executor.MaxParallel < 1 {
		return errors.New("executor.max_parallel must be >= 1")
	}
	if cfg.Executor.MonitorInterval <= 0 {
		return errors.New("executor.monitor_interval must be > 0")
	}
	if cfg.Executor.CompletedRetention < 1 {
		return errors.New("executor.completed_retention must be >= 1")
	}
	if cfg.Executor.BusHistory < 1 {
		return errors.New("executor.bus_history must be >= 1")
	}
	if cfg.Executor.ArtifactDir == "" {
		return errors.New("executor.artifact_dir is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Spawn.Burst < 1 {
		return errors.New("spawn.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
