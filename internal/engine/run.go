package engine

// run.go - two-phase build orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verforge/verforge/internal/coords"
	"github.com/verforge/verforge/internal/directive"
	"github.com/verforge/verforge/internal/registry"
	"github.com/verforge/verforge/internal/state"
)

// Status is the outcome of one target in a run.
type Status string

// Status values.
const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// TargetResult is the outcome of binding one target.
type TargetResult struct {
	Target       registry.Target
	Status       Status
	OutputRoot   string
	Files        int
	Dependencies []coords.Coordinate
	Duration     time.Duration
	Err          error
}

// Summary reports a run. Results are ordered by rank.
type Summary struct {
	RunID      string
	Units      int
	Directives int
	Results    []TargetResult
	Duration   time.Duration
}

// Count returns the number of targets with status st.
func (s *Summary) Count(st Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == st {
			n++
		}
	}
	return n
}

// Err joins the errors of every target that did not succeed.
func (s *Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Run builds every selected target using a two-phase approach:
// Phase 1: load and validate the whole shared tree; any error aborts the run
// before a single file is written.
// Phase 2: bind targets in parallel. A failing target is recorded in the
// summary and never affects its siblings.
// Concurrent calls are serialized.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	targets, err := e.targets()
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	e.logger.Info("starting run", "targets", len(targets), "parallelism", e.parallelism)

	runID := e.createRun(ctx, len(targets))
	summary := &Summary{RunID: runID}

	e.logger.Debug("validating shared tree", "root", e.sharedRoot)

	// Phase 1: validate
	src, err := e.Load()
	if err != nil {
		e.logger.Error("run failed during validation", "run_id", runID, "error", err)
		e.completeRun(ctx, summary, state.RunStatusFailed, "validation failed")
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	summary.Units = len(src.Units)
	summary.Directives = src.Directives

	// Phase 2: bind
	summary.Results = e.bindAll(ctx, targets, src.Units)
	summary.Duration = time.Since(start)

	runErr := summary.Err()
	status := state.RunStatusCompleted
	switch {
	case ctx.Err() != nil:
		status = state.RunStatusCancelled
	case runErr != nil:
		status = state.RunStatusFailed
	}

	if runErr != nil {
		failed := len(targets) - summary.Count(StatusSuccess)
		runErr = fmt.Errorf("%d of %d targets did not build: %w", failed, len(targets), runErr)
		e.logger.Info("run finished with failures", "run_id", runID, "failed", failed)
		e.completeRun(ctx, summary, status, runErr.Error())
		return summary, runErr
	}

	e.logger.Info("run completed", "run_id", runID, "targets", len(targets), "duration", summary.Duration)
	e.completeRun(ctx, summary, status, "")
	return summary, nil
}

func (e *Engine) bindAll(ctx context.Context, targets []registry.Target, units []*directive.Unit) []TargetResult {
	results := make([]TargetResult, len(targets))

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = e.bindTarget(ctx, t, units)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) bindTarget(ctx context.Context, t registry.Target, units []*directive.Unit) TargetResult {
	start := time.Now()
	res := TargetResult{Target: t, OutputRoot: e.binder.OutputRoot(t.ID)}

	bc, err := e.binder.Bind(ctx, t, e.reg, units)
	res.Duration = time.Since(start)

	switch {
	case err == nil:
		res.Status = StatusSuccess
		res.Files = len(bc.Files)
		res.Dependencies = bc.Dependencies
		e.logger.Debug("target built", "target", t.ID, "files", res.Files, "duration_ms", res.Duration.Milliseconds())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		res.Status = StatusCancelled
		res.Err = err
		e.logger.Debug("target cancelled", "target", t.ID)
	default:
		res.Status = StatusFailed
		res.Err = err
		e.logger.Warn("target failed", "target", t.ID, "error", err)
	}
	return res
}

// createRun records the start of a run. History is best effort: store
// errors are logged and the run proceeds.
func (e *Engine) createRun(ctx context.Context, targets int) string {
	if e.store == nil {
		return ""
	}
	run, err := e.store.CreateRun(ctx, targets)
	if err != nil {
		e.logger.Warn("failed to record run", "error", err)
		return ""
	}
	e.logger.Debug("created run", "run_id", run.ID)
	return run.ID
}

func (e *Engine) completeRun(ctx context.Context, s *Summary, status state.RunStatus, errMsg string) {
	if e.store == nil || s.RunID == "" {
		return
	}
	// history is written even when the run itself was cancelled
	ctx = context.WithoutCancel(ctx)

	for _, r := range s.Results {
		tr := &state.TargetRun{
			RunID:      s.RunID,
			Target:     r.Target.ID,
			Rank:       r.Target.Rank,
			Status:     string(r.Status),
			OutputRoot: r.OutputRoot,
			Files:      r.Files,
			DurationMS: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			tr.Error = r.Err.Error()
		}
		if err := e.store.RecordTargetRun(ctx, tr); err != nil {
			e.logger.Warn("failed to record target run", "target", r.Target.ID, "error", err)
		}
	}
	if err := e.store.CompleteRun(ctx, s.RunID, status, errMsg); err != nil {
		e.logger.Warn("failed to complete run", "run_id", s.RunID, "error", err)
	}
	if _, err := e.store.PruneRuns(ctx, historyKeep); err != nil {
		e.logger.Warn("failed to prune run history", "error", err)
	}
}
