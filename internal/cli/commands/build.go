package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/verforge/verforge/internal/cli/output"
	"github.com/verforge/verforge/internal/engine"
)

// BuildOptions holds options for the build command.
type BuildOptions struct {
	Targets   []string
	Enable    []string
	NoHistory bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate a build context for every enabled target",
		Long: `Validate the shared source tree, then generate one directive-free build
context per enabled target under the output directory.

Validation runs first and covers every file and every target, disabled ones
included: if any file is malformed or references an unknown version, nothing
is written. Targets are then built in parallel; a failing target never stops
its siblings.`,
		Example: `  # Build every enabled target
  verforge build

  # Build only some targets
  verforge build --target 1.20.1,1.21.4

  # Build a target that is disabled in the config
  verforge build --enable 1.21.1 --target 1.21.1

  # Machine-readable summary
  verforge build --format json`,
		Aliases: []string{"run"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Targets, "target", "t", nil, "Comma-separated list of targets to build")
	cmd.Flags().StringSliceVar(&opts.Enable, "enable", nil, "Enable targets that are disabled in the config")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record this run in the history store")

	return cmd
}

func runBuild(cmd *cobra.Command, opts *BuildOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if err := cc.Cfg.ValidateDirectories(); err != nil {
		return err
	}

	eng, cleanup, err := cc.NewEngine(engineOptions{
		targets: opts.Targets,
		enable:  opts.Enable,
		history: !opts.NoHistory,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := eng.Run(cmd.Context())
	if summary == nil {
		return err
	}
	if rerr := renderSummary(cc.Renderer, summary); rerr != nil {
		return rerr
	}
	return err
}

// renderSummary prints a run summary in the renderer's mode.
func renderSummary(r *output.Renderer, s *engine.Summary) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(output.NewBuildOutput(s))
	}

	r.Header(1, fmt.Sprintf("Build (%d units, %d directives)", s.Units, s.Directives))
	for _, res := range s.Results {
		detail := fmt.Sprintf("%d files in %s", res.Files, res.Duration.Round(time.Millisecond))
		if res.Err != nil {
			detail = res.Err.Error()
		}
		r.StatusLine(res.Target.ID, string(res.Status), detail)
	}
	r.Println()

	ok := s.Count(engine.StatusSuccess)
	line := fmt.Sprintf("%d of %d targets built in %s", ok, len(s.Results), s.Duration.Round(time.Millisecond))
	if ok == len(s.Results) {
		r.Success(line)
	} else {
		r.Error(line)
	}
	if s.RunID != "" {
		r.Muted("run " + s.RunID)
	}
	return nil
}
