package output

import (
	"errors"
	"time"

	"github.com/verforge/verforge/internal/coords"
	"github.com/verforge/verforge/internal/engine"
	"github.com/verforge/verforge/internal/registry"
	"github.com/verforge/verforge/internal/state"
)

// Build status values reported in BuildOutput.Status.
const (
	BuildSucceeded = "success"
	BuildFailed    = "failed"
)

// NewTargetsOutput lists the targets of reg. outputRoot maps a target id to
// its build context directory.
func NewTargetsOutput(reg *registry.Registry, m *coords.Mapper, outputRoot func(string) string, enabledOnly bool) TargetsOutput {
	res := TargetsOutput{Ordering: string(reg.Ordering()), Targets: []TargetInfo{}}
	for _, t := range reg.Targets() {
		if enabledOnly && !t.Enabled {
			continue
		}
		info := TargetInfo{
			ID:         t.ID,
			Rank:       t.Rank,
			Enabled:    t.Enabled,
			OutputRoot: outputRoot(t.ID),
		}
		for _, c := range m.ResolveAll(t.Dependencies) {
			info.Dependencies = append(info.Dependencies, c.String())
		}
		res.Targets = append(res.Targets, info)
	}
	return res
}

// NewBuildOutput converts a run summary.
func NewBuildOutput(s *engine.Summary) BuildOutput {
	out := BuildOutput{
		RunID:      s.RunID,
		Status:     BuildSucceeded,
		Units:      s.Units,
		Directives: s.Directives,
		DurationMS: s.Duration.Milliseconds(),
		Targets:    make([]TargetBuild, 0, len(s.Results)),
	}
	for _, r := range s.Results {
		tb := TargetBuild{
			Target:     r.Target.ID,
			Rank:       r.Target.Rank,
			Status:     string(r.Status),
			OutputRoot: r.OutputRoot,
			Files:      r.Files,
			DurationMS: r.Duration.Milliseconds(),
		}
		for _, d := range r.Dependencies {
			tb.Dependencies = append(tb.Dependencies, d.String())
		}
		if r.Err != nil {
			tb.Error = r.Err.Error()
			out.Status = BuildFailed
		}
		out.Targets = append(out.Targets, tb)
	}
	return out
}

// NewCheckOutput reports the result of loading the shared tree. loadErr is
// split into one message per problem.
func NewCheckOutput(targets int, src *engine.Source, loadErr error) CheckOutput {
	res := CheckOutput{Targets: targets}
	if loadErr != nil {
		for _, e := range SplitErrors(loadErr) {
			res.Errors = append(res.Errors, e.Error())
		}
		return res
	}
	res.Valid = true
	res.Units = len(src.Units)
	res.Verbatim = src.Verbatim
	res.Directives = src.Directives
	return res
}

// NewResolveOutput maps id and version and lists the repositories the
// coordinate is tried against.
func NewResolveOutput(m *coords.Mapper, id, version string) ResolveOutput {
	c := m.Resolve(id, version)
	res := ResolveOutput{
		ID:         id,
		Version:    version,
		Coordinate: c.String(),
		Rewritten:  c.Rewritten(),
		Rule:       c.Rule,
		Candidates: []CandidateInfo{},
	}
	for _, cand := range m.Candidates(id, version) {
		res.Candidates = append(res.Candidates, CandidateInfo{
			Priority:   cand.Priority,
			Repository: cand.Repository.Name,
			URL:        cand.Repository.URL,
		})
	}
	return res
}

// NewRunInfo converts a recorded run and, optionally, its target results.
func NewRunInfo(run *state.Run, results []*state.TargetRun) RunInfo {
	info := RunInfo{
		ID:        run.ID,
		Status:    string(run.Status),
		Targets:   run.Targets,
		StartedAt: run.StartedAt.Local().Format(time.DateTime),
		Error:     run.Error,
	}
	if run.CompletedAt != nil {
		info.CompletedAt = run.CompletedAt.Local().Format(time.DateTime)
		info.DurationMS = run.Duration().Milliseconds()
	}
	for _, tr := range results {
		info.Results = append(info.Results, TargetBuild{
			Target:     tr.Target,
			Rank:       tr.Rank,
			Status:     tr.Status,
			OutputRoot: tr.OutputRoot,
			Files:      tr.Files,
			DurationMS: tr.DurationMS,
			Error:      tr.Error,
		})
	}
	return info
}

// SplitErrors flattens errors joined with errors.Join.
func SplitErrors(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, SplitErrors(e)...)
		}
		return out
	}
	return []error{err}
}
