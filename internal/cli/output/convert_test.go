package output

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verforge/verforge/internal/coords"
	"github.com/verforge/verforge/internal/engine"
	"github.com/verforge/verforge/internal/registry"
	"github.com/verforge/verforge/internal/state"
)

func testMapper(t *testing.T) *coords.Mapper {
	t.Helper()
	m, err := coords.New(
		[]coords.Rule{{Match: "com.replaymod.preprocess", Module: "com.github.ReplayMod:preprocessor:${version}"}},
		[]coords.Repository{{Name: "fabric", URL: "https://maven.fabricmc.net/"}, {Name: "jitpack", URL: "https://jitpack.io"}},
	)
	require.NoError(t, err)
	return m
}

func TestNewTargetsOutput(t *testing.T) {
	b := registry.NewBuilder()
	require.NoError(t, b.Register("1.19.4", true))
	require.NoError(t, b.Register("1.20.1", true, coords.Request{ID: "com.replaymod.preprocess", Version: "48e02ad"}))
	require.NoError(t, b.Register("1.21.1", false))
	reg, err := b.Freeze()
	require.NoError(t, err)

	root := func(id string) string { return "/out/" + id }

	all := NewTargetsOutput(reg, testMapper(t), root, false)
	assert.Equal(t, "declared", all.Ordering)
	require.Len(t, all.Targets, 3)
	assert.Equal(t, TargetInfo{
		ID:           "1.20.1",
		Rank:         1,
		Enabled:      true,
		OutputRoot:   "/out/1.20.1",
		Dependencies: []string{"com.github.ReplayMod:preprocessor:48e02ad"},
	}, all.Targets[1])

	enabled := NewTargetsOutput(reg, testMapper(t), root, true)
	assert.Len(t, enabled.Targets, 2)
}

func TestNewBuildOutput(t *testing.T) {
	s := &engine.Summary{
		RunID:      "run-1",
		Units:      4,
		Directives: 7,
		Duration:   1500 * time.Millisecond,
		Results: []engine.TargetResult{
			{
				Target:       registry.Target{ID: "1.19.4", Rank: 0},
				Status:       engine.StatusSuccess,
				Files:        4,
				Dependencies: []coords.Coordinate{{ID: "foo.bar", Module: "foo.bar", Version: "1.0", Rule: -1}},
			},
			{
				Target: registry.Target{ID: "1.20.1", Rank: 1},
				Status: engine.StatusFailed,
				Err:    errors.New("disk full"),
			},
		},
	}

	out := NewBuildOutput(s)
	assert.Equal(t, BuildFailed, out.Status)
	assert.Equal(t, int64(1500), out.DurationMS)
	require.Len(t, out.Targets, 2)
	assert.Equal(t, []string{"foo.bar:1.0"}, out.Targets[0].Dependencies)
	assert.Empty(t, out.Targets[0].Error)
	assert.Equal(t, "disk full", out.Targets[1].Error)

	s.Results = s.Results[:1]
	assert.Equal(t, BuildSucceeded, NewBuildOutput(s).Status)
}

func TestNewCheckOutput(t *testing.T) {
	ok := NewCheckOutput(3, &engine.Source{Verbatim: 2, Directives: 5}, nil)
	assert.True(t, ok.Valid)
	assert.Equal(t, 3, ok.Targets)
	assert.Equal(t, 2, ok.Verbatim)
	assert.Equal(t, 5, ok.Directives)

	err := errors.Join(errors.New("a.java: unknown version"), errors.Join(errors.New("b.java: unclosed block")))
	bad := NewCheckOutput(3, nil, err)
	assert.False(t, bad.Valid)
	assert.Equal(t, []string{"a.java: unknown version", "b.java: unclosed block"}, bad.Errors)
}

func TestNewResolveOutput(t *testing.T) {
	m := testMapper(t)

	res := NewResolveOutput(m, "com.replaymod.preprocess", "48e02ad")
	assert.Equal(t, "com.github.ReplayMod:preprocessor:48e02ad", res.Coordinate)
	assert.True(t, res.Rewritten)
	assert.Equal(t, 0, res.Rule)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "fabric", res.Candidates[0].Repository)

	pass := NewResolveOutput(m, "foo.bar", "")
	assert.Equal(t, "foo.bar", pass.Coordinate)
	assert.False(t, pass.Rewritten)
	assert.Equal(t, -1, pass.Rule)
}

func TestNewRunInfo(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	done := started.Add(2 * time.Second)

	running := NewRunInfo(&state.Run{ID: "r1", Status: state.RunStatusRunning, Targets: 2, StartedAt: started}, nil)
	assert.Empty(t, running.CompletedAt)
	assert.Zero(t, running.DurationMS)
	assert.Nil(t, running.Results)

	info := NewRunInfo(
		&state.Run{ID: "r2", Status: state.RunStatusCompleted, Targets: 1, StartedAt: started, CompletedAt: &done},
		[]*state.TargetRun{{Target: "1.20.1", Rank: 1, Status: "success", Files: 3, DurationMS: 12}},
	)
	assert.Equal(t, int64(2000), info.DurationMS)
	require.Len(t, info.Results, 1)
	assert.Equal(t, TargetBuild{Target: "1.20.1", Rank: 1, Status: "success", Files: 3, DurationMS: 12}, info.Results[0])
}

func TestSplitErrors(t *testing.T) {
	single := errors.New("one")
	assert.Equal(t, []error{single}, SplitErrors(single))

	wrapped := fmt.Errorf("load: %w", errors.Join(errors.New("x"), errors.New("y")))
	assert.Len(t, SplitErrors(wrapped), 2)
}
