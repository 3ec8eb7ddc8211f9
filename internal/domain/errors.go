// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested agent does not exist in either table.
var ErrNotFound = errors.New("not found")

// ErrCapacityExceeded indicates the executor is at its parallelism ceiling.
// Spawn returns it synchronously; no record is created.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrUnsupportedOperation indicates the backend cannot perform the requested
// control operation (e.g. pause on the goroutine backend).
var ErrUnsupportedOperation = errors.New("unsupported operation")

// ErrShuttingDown indicates the executor no longer accepts new work.
var ErrShuttingDown = errors.New("executor is shutting down")

// ErrSpawnThrottled indicates the per-class spawn rate limit rejected the
// request. Like ErrCapacityExceeded it is synchronous and creates no record.
var ErrSpawnThrottled = errors.New("spawn rate limit exceeded")
