package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/verforge/verforge/internal/cli/output"
)

// NewTargetsCommand creates the targets command.
func NewTargetsCommand() *cobra.Command {
	var enabledOnly bool

	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List the registered targets in rank order",
		Long: `List every registered target with its rank, whether it is enabled, where
its build context is generated and the coordinates of its dependencies.

Ranks follow the ordering policy: declaration order by default, semantic
version order with ordering: semver.`,
		Example: `  # List all targets
  verforge targets

  # Only the targets a build would produce
  verforge targets --enabled`,
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTargets(cmd, enabledOnly)
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only list enabled targets")

	return cmd
}

func runTargets(cmd *cobra.Command, enabledOnly bool) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	eng, cleanup, err := cc.NewEngine(engineOptions{})
	if err != nil {
		return err
	}
	defer cleanup()

	mapper, err := cc.Cfg.Mapper()
	if err != nil {
		return err
	}
	res := output.NewTargetsOutput(eng.Registry(), mapper, eng.Binder().OutputRoot, enabledOnly)

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}

	r.Header(1, fmt.Sprintf("Targets (%d, %s order)", len(res.Targets), res.Ordering))
	rows := make([][]string, 0, len(res.Targets))
	for _, t := range res.Targets {
		enabled := "yes"
		if !t.Enabled {
			enabled = "no"
		}
		rows = append(rows, []string{
			strconv.Itoa(t.Rank),
			t.ID,
			enabled,
			t.OutputRoot,
			strings.Join(t.Dependencies, ", "),
		})
	}
	r.Table([]string{"RANK", "ID", "ENABLED", "OUTPUT", "DEPENDENCIES"}, rows)
	return nil
}
