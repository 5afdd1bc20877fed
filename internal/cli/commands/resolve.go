package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/verforge/verforge/internal/cli/output"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <id> [version]",
		Short: "Show how a plugin or dependency id maps to a module coordinate",
		Long: `Apply the configured plugin rules to a logical id and list the
repositories the coordinate would be fetched from, in priority order.

An id no rule matches passes through unchanged.`,
		Example: `  # A rewritten plugin id
  verforge resolve com.replaymod.preprocess 48e02ad

  # An id without a rule passes through
  verforge resolve foo.bar 1.0`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runResolve,
	}
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	mapper, err := cc.Cfg.Mapper()
	if err != nil {
		return err
	}

	id, version := args[0], ""
	if len(args) > 1 {
		version = args[1]
	}

	res := output.NewResolveOutput(mapper, id, version)

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}

	r.Header(1, res.Coordinate)
	if res.Rewritten {
		r.Muted(fmt.Sprintf("%s rewritten by rule %d", id, res.Rule))
	} else {
		r.Muted(id + " passes through unchanged")
	}
	r.Println()

	if len(res.Candidates) == 0 {
		r.Muted("no repositories configured")
		return nil
	}
	rows := make([][]string, 0, len(res.Candidates))
	for _, cand := range res.Candidates {
		rows = append(rows, []string{strconv.Itoa(cand.Priority), cand.Repository, cand.URL})
	}
	r.Table([]string{"PRIORITY", "REPOSITORY", "URL"}, rows)
	return nil
}
