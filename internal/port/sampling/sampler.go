// Package sampling defines the process resource sampler port used by the
// resource monitor.
package sampling

import "context"

// Usage is one sample of a process's live resource consumption.
type Usage struct {
	RSSBytes   int64
	CPUPercent float64
}

// Sampler reads live resource usage for an OS process. Only process-backend
// agents can be sampled; goroutine-backend agents share the executor's
// process and are monitored for duration only.
type Sampler interface {
	Sample(ctx context.Context, pid int) (Usage, error)
}
