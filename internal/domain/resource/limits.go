// Package resource defines the per-agent resource budget.
package resource

import "time"

// Limits defines the resource budget attached to one agent.
// A zero field means unlimited. Limits are never mutated after spawn.
type Limits struct {
	MaxMemoryBytes int64         `json:"max_memory_bytes,omitempty" yaml:"max_memory_bytes,omitempty"`
	MaxCPUPercent  float64       `json:"max_cpu_percent,omitempty" yaml:"max_cpu_percent,omitempty"`
	MaxDuration    time.Duration `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`
	MaxDiskBytes   int64         `json:"max_disk_bytes,omitempty" yaml:"max_disk_bytes,omitempty"`
}

// Merge returns a new Limits where non-zero fields from override replace base.
func Merge(base, override Limits) Limits {
	out := base
	if override.MaxMemoryBytes > 0 {
		out.MaxMemoryBytes = override.MaxMemoryBytes
	}
	if override.MaxCPUPercent > 0 {
		out.MaxCPUPercent = override.MaxCPUPercent
	}
	if override.MaxDuration > 0 {
		out.MaxDuration = override.MaxDuration
	}
	if override.MaxDiskBytes > 0 {
		out.MaxDiskBytes = override.MaxDiskBytes
	}
	return out
}

// Cap returns a new Limits where each field is capped at the corresponding
// ceiling value. A zero ceiling field means no cap for that field, and a zero
// (unlimited) limit field is pulled down to the ceiling.
func Cap(limits, ceiling Limits) Limits {
	out := limits
	if ceiling.MaxMemoryBytes > 0 && (out.MaxMemoryBytes == 0 || out.MaxMemoryBytes > ceiling.MaxMemoryBytes) {
		out.MaxMemoryBytes = ceiling.MaxMemoryBytes
	}
	if ceiling.MaxCPUPercent > 0 && (out.MaxCPUPercent == 0 || out.MaxCPUPercent > ceiling.MaxCPUPercent) {
		out.MaxCPUPercent = ceiling.MaxCPUPercent
	}
	if ceiling.MaxDuration > 0 && (out.MaxDuration == 0 || out.MaxDuration > ceiling.MaxDuration) {
		out.MaxDuration = ceiling.MaxDuration
	}
	if ceiling.MaxDiskBytes > 0 && (out.MaxDiskBytes == 0 || out.MaxDiskBytes > ceiling.MaxDiskBytes) {
		out.MaxDiskBytes = ceiling.MaxDiskBytes
	}
	return out
}
