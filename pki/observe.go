package pki

import (
	"context"
	"time"
)

// Observer receives timing and result information. Implementations must be
// safe for concurrent use: detached tasks report from their own goroutine.
type Observer interface {
	ObserveCommand(name string, exitCode int, elapsed time.Duration)
	ObserveOperation(op Operation, err error, elapsed time.Duration)
}

// Record summarises one completed operation. Commands are redacted.
type Record struct {
	Operation Operation
	Name      string
	Commands  []string
	Err       error
	Started   time.Time
	Duration  time.Duration
}

// Recorder persists operation records. A failing Recorder never changes the
// result of the operation; the failure is logged.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// DiagnosticFunc receives failures of detached background tasks.
type DiagnosticFunc func(task string, err error)
