package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/verforge/verforge/internal/cli/output"
	"github.com/verforge/verforge/internal/config"
	"github.com/verforge/verforge/internal/engine"
	"github.com/verforge/verforge/internal/registry"
	"github.com/verforge/verforge/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the command's context.
// Outside the root command (as in tests) the config is loaded from the
// working directory.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		var err error
		if cfg, err = config.LoadConfig("", nil); err != nil {
			return nil, err
		}
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// Registry builds the configured registry, force-enabling the given ids.
func (c *CommandContext) Registry(enable []string) (*registry.Registry, error) {
	reg, err := c.Cfg.Registry()
	if err != nil {
		return nil, err
	}
	for _, id := range enable {
		if reg, err = reg.WithEnabled(id, true); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// engineOptions selects what a command's engine builds and records.
type engineOptions struct {
	targets []string
	enable  []string
	history bool
}

// NewEngine creates an engine from the current configuration.
// Returns the engine and a cleanup function that must be called (typically via defer).
func (c *CommandContext) NewEngine(opts engineOptions) (*engine.Engine, func(), error) {
	reg, err := c.Registry(opts.enable)
	if err != nil {
		return nil, nil, err
	}
	mapper, err := c.Cfg.Mapper()
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var store state.Store
	if opts.history && c.Cfg.HistoryEnabled() {
		s := state.NewSQLiteStore(c.Logger)
		if err := s.Open(c.Cfg.StatePath); err != nil {
			return nil, nil, fmt.Errorf("failed to open state store: %w", err)
		}
		store = s
		cleanup = func() { _ = s.Close() }
	}

	eng, err := engine.New(engine.Config{
		Registry:    reg,
		SharedRoot:  c.Cfg.SharedRoot,
		OutputBase:  c.Cfg.Output,
		Descriptor:  c.Cfg.Descriptor,
		Discover:    c.Cfg.DiscoverOptions(),
		Directive:   c.Cfg.DirectiveOptions(),
		Mapper:      mapper,
		Parallelism: c.Cfg.Parallelism,
		Targets:     opts.targets,
		Store:       store,
		Logger:      c.Logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return eng, cleanup, nil
}

// openStore opens the history store read-write. It fails when history is
// disabled.
func (c *CommandContext) openStore() (*state.SQLiteStore, error) {
	if !c.Cfg.HistoryEnabled() {
		return nil, fmt.Errorf("run history is disabled (state_path is empty)")
	}
	s := state.NewSQLiteStore(c.Logger)
	if err := s.Open(c.Cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return s, nil
}
