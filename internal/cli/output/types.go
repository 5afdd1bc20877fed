package output

// JSON output shapes. Field names are stable for scripts.

// TargetInfo describes one registered target.
type TargetInfo struct {
	ID           string   `json:"id"`
	Rank         int      `json:"rank"`
	Enabled      bool     `json:"enabled"`
	OutputRoot   string   `json:"output_root"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// TargetsOutput is the targets command result.
type TargetsOutput struct {
	Ordering string       `json:"ordering"`
	Targets  []TargetInfo `json:"targets"`
}

// TargetBuild is the outcome of one target in a build.
type TargetBuild struct {
	Target       string   `json:"target"`
	Rank         int      `json:"rank"`
	Status       string   `json:"status"`
	OutputRoot   string   `json:"output_root,omitempty"`
	Files        int      `json:"files"`
	Dependencies []string `json:"dependencies,omitempty"`
	DurationMS   int64    `json:"duration_ms"`
	Error        string   `json:"error,omitempty"`
}

// BuildOutput is the build command result.
type BuildOutput struct {
	RunID      string        `json:"run_id,omitempty"`
	Status     string        `json:"status"`
	Units      int           `json:"units"`
	Directives int           `json:"directives"`
	Targets    []TargetBuild `json:"targets"`
	DurationMS int64         `json:"duration_ms"`
}

// CheckOutput is the check command result.
type CheckOutput struct {
	Valid      bool     `json:"valid"`
	Units      int      `json:"units"`
	Verbatim   int      `json:"verbatim"`
	Directives int      `json:"directives"`
	Targets    int      `json:"targets"`
	Errors     []string `json:"errors,omitempty"`
}

// CandidateInfo is one repository attempt for a coordinate.
type CandidateInfo struct {
	Priority   int    `json:"priority"`
	Repository string `json:"repository"`
	URL        string `json:"url"`
}

// ResolveOutput is the resolve command result.
type ResolveOutput struct {
	ID         string          `json:"id"`
	Version    string          `json:"version,omitempty"`
	Coordinate string          `json:"coordinate"`
	Rewritten  bool            `json:"rewritten"`
	Rule       int             `json:"rule"`
	Candidates []CandidateInfo `json:"candidates"`
}

// RunInfo summarizes one recorded run.
type RunInfo struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Targets     int           `json:"targets"`
	StartedAt   string        `json:"started_at"`
	CompletedAt string        `json:"completed_at,omitempty"`
	DurationMS  int64         `json:"duration_ms,omitempty"`
	Error       string        `json:"error,omitempty"`
	Results     []TargetBuild `json:"results,omitempty"`
}

// HistoryOutput is the history command result.
type HistoryOutput struct {
	Runs []RunInfo `json:"runs"`
}
