package commands

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/verforge/verforge/internal/engine"
	"github.com/verforge/verforge/internal/server"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port      int
	Watch     bool
	NoHistory bool
	Debounce  time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve targets, builds and run history over a local JSON API",
		Long: `Start a local HTTP server exposing the project as JSON.

Endpoints:
  GET  /api/targets            registered targets (?enabled=true)
  GET  /api/check              validate the shared tree
  GET  /api/expand             one file as a target sees it (?target=&file=)
  GET  /api/resolve/{id}       plugin coordinate mapping (?version=)
  POST /api/builds             build every enabled target
  GET  /api/builds/latest      the last build this server ran
  GET  /api/runs               run history (?limit=)
  GET  /api/runs/latest        the most recent recorded run
  GET  /api/runs/{id}          one recorded run`,
		Example: `  # Serve on the default port, rebuilding on change
  verforge serve

  # Serve on a custom port without watching
  verforge serve --port 3000 --watch=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "Rebuild whenever the shared tree changes")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record runs in the history store")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", engine.DefaultDebounce, "Quiet period before a rebuild")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if err := cc.Cfg.ValidateDirectories(); err != nil {
		return err
	}

	// CLI flags override config file
	serveCfg := cc.Cfg.GetServeConfig()
	port := serveCfg.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	watch := serveCfg.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}

	eng, cleanup, err := cc.NewEngine(engineOptions{history: !opts.NoHistory})
	if err != nil {
		return err
	}
	defer cleanup()

	mapper, err := cc.Cfg.Mapper()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Engine:   eng,
		Mapper:   mapper,
		Store:    eng.Store(),
		Port:     port,
		Watch:    watch,
		Debounce: opts.Debounce,
		Logger:   cc.Logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cc.Renderer.Muted("serving " + cc.Cfg.SharedRoot)
	return srv.Serve(ctx)
}
