package commands

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/verforge/verforge/internal/engine"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &BuildOptions{}
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild every target whenever the shared tree changes",
		Long: `Build once, then watch the shared source tree and rebuild on every change
until interrupted. A change that breaks validation is reported and the last
good build contexts are left in place.`,
		Example: `  # Keep build contexts in sync while editing
  verforge watch

  # Only keep one target in sync
  verforge watch --target 1.21.4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts, debounce)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Targets, "target", "t", nil, "Comma-separated list of targets to build")
	cmd.Flags().StringSliceVar(&opts.Enable, "enable", nil, "Enable targets that are disabled in the config")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record runs in the history store")
	cmd.Flags().DurationVar(&debounce, "debounce", engine.DefaultDebounce, "Quiet period before a rebuild")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *BuildOptions, debounce time.Duration) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := cc.Renderer
	r.Muted("watching " + cc.Cfg.SharedRoot)
	return eng.Watch(ctx, debounce, func(s *engine.Summary, err error) {
		if s != nil {
			_ = renderSummary(r, s)
		}
		if err != nil && ctx.Err() == nil {
			r.Error(err.Error())
		}
	})
}
