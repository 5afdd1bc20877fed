package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/verforge/verforge/internal/cli/output"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded build runs",
		Long: `List recent build runs from the history store, newest first.
Given a run id, show the outcome of every target in that run.`,
		Example: `  # Recent runs
  verforge history

  # One run in detail
  verforge history 3f2c9a1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runHistoryDetail(cmd, args[0])
			}
			return runHistoryList(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")

	return cmd
}

func runHistoryList(cmd *cobra.Command, limit int) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cc.Renderer

	if !cc.Cfg.HistoryEnabled() {
		return fmt.Errorf("run history is disabled (state_path is empty)")
	}

	// no store yet means no runs; do not create one just to list it
	res := output.HistoryOutput{Runs: []output.RunInfo{}}
	if _, err := os.Stat(cc.Cfg.StatePath); err == nil {
		store, err := cc.openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		runs, err := store.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, run := range runs {
			res.Runs = append(res.Runs, output.NewRunInfo(run, nil))
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}
	if len(res.Runs) == 0 {
		r.Muted("no runs recorded")
		return nil
	}

	r.Header(1, fmt.Sprintf("Runs (%d)", len(res.Runs)))
	rows := make([][]string, 0, len(res.Runs))
	for _, run := range res.Runs {
		rows = append(rows, []string{
			run.ID,
			run.Status,
			strconv.Itoa(run.Targets),
			run.StartedAt,
			formatMS(run.DurationMS),
		})
	}
	r.Table([]string{"RUN", "STATUS", "TARGETS", "STARTED", "DURATION"}, rows)
	return nil
}

func runHistoryDetail(cmd *cobra.Command, id string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	trs, err := store.ListTargetRuns(ctx, id)
	if err != nil {
		return err
	}

	info := output.NewRunInfo(run, trs)

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(info)
	}

	r.Header(1, "Run "+info.ID)
	r.Muted(fmt.Sprintf("%s, started %s, %s", info.Status, info.StartedAt, formatMS(info.DurationMS)))
	if info.Error != "" {
		r.Println(r.Styles().Error.Render(info.Error))
	}
	r.Println()
	for _, res := range info.Results {
		detail := fmt.Sprintf("%d files in %s", res.Files, formatMS(res.DurationMS))
		if res.Error != "" {
			detail = res.Error
		}
		r.StatusLine(res.Target, res.Status, detail)
	}
	return nil
}

func formatMS(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
