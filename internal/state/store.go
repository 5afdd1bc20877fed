// Package state records build run history in SQLite.
// It tracks runs and the per-target outcome of each run.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id is not in the store.
var ErrRunNotFound = errors.New("run not found")

// RunStatus represents the status of a run.
type RunStatus string

// RunStatus values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one invocation of the build.
type Run struct {
	ID          string
	Status      RunStatus
	Targets     int // enabled targets scheduled
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// TargetRun is the outcome of binding one target within a run.
type TargetRun struct {
	ID         string
	RunID      string
	Target     string
	Rank       int
	Status     string
	OutputRoot string
	Files      int
	DurationMS int64
	Error      string
	CreatedAt  time.Time
}

// Store persists run history.
type Store interface {
	Open(path string) error
	Close() error

	CreateRun(ctx context.Context, targets int) (*Run, error)
	CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	GetLatestRun(ctx context.Context) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	PruneRuns(ctx context.Context, keep int) (int, error)

	RecordTargetRun(ctx context.Context, tr *TargetRun) error
	ListTargetRuns(ctx context.Context, runID string) ([]*TargetRun, error)
}
