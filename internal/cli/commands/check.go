package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/verforge/verforge/internal/cli/output"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the shared source tree without writing anything",
		Long: `Parse every file of the shared source tree and check every version
reference against the registry. Disabled targets are valid references, so a
file that only mentions a disabled version still checks clean.

Every problem is reported, not only the first one.`,
		Example: `  # Validate the project
  verforge check

  # Validate in CI
  verforge check --format json`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if err := cc.Cfg.ValidateDirectories(); err != nil {
		return err
	}

	eng, cleanup, err := cc.NewEngine(engineOptions{})
	if err != nil {
		return err
	}
	defer cleanup()

	r := cc.Renderer
	src, loadErr := eng.Load()
	res := output.NewCheckOutput(eng.Registry().Len(), src, loadErr)

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(res); err != nil {
			return err
		}
		return loadErr
	}

	if loadErr != nil {
		r.Header(1, fmt.Sprintf("Check failed (%d problems)", len(res.Errors)))
		for _, msg := range res.Errors {
			r.StatusLine(msg, "failed", "")
		}
		return loadErr
	}

	r.Success(fmt.Sprintf("%d units checked against %d targets", res.Units, res.Targets))
	r.Muted(fmt.Sprintf("%d directives, %d verbatim files", res.Directives, res.Verbatim))
	return nil
}
