package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewCleanCommand creates the clean command.
func NewCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [target...]",
		Short: "Remove generated build contexts",
		Long: `Remove the generated build context of the given targets, or of every
registered target when none is given. Only trees carrying the generated
marker are removed; anything else in the output directory is left alone.`,
		Example: `  # Remove every generated context
  verforge clean

  # Remove one
  verforge clean 1.19.4`,
		RunE: runClean,
	}
	return cmd
}

func runClean(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	eng, cleanup, err := cc.NewEngine(engineOptions{})
	if err != nil {
		return err
	}
	defer cleanup()

	ids := args
	if len(ids) == 0 {
		for _, t := range eng.Registry().Targets() {
			ids = append(ids, t.ID)
		}
	}

	r := cc.Renderer
	b := eng.Binder()
	var errs []error
	for _, id := range ids {
		if _, ok := eng.Registry().Lookup(id); !ok {
			err := fmt.Errorf("unknown target %q", id)
			r.StatusLine(id, "failed", err.Error())
			errs = append(errs, err)
			continue
		}
		if err := b.Clean(id); err != nil {
			r.StatusLine(id, "failed", err.Error())
			errs = append(errs, err)
			continue
		}
		r.StatusLine(id, "success", b.OutputRoot(id))
	}
	return errors.Join(errs...)
}
