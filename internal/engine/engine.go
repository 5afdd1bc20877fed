// Package engine orchestrates multi-target builds.
// It validates the shared source tree once, then binds every enabled target
// to its own build context in a bounded worker pool.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/verforge/verforge/internal/binder"
	"github.com/verforge/verforge/internal/coords"
	"github.com/verforge/verforge/internal/directive"
	"github.com/verforge/verforge/internal/registry"
	"github.com/verforge/verforge/internal/state"
)

// ErrNoTargets is returned when a run has no enabled target to build.
var ErrNoTargets = errors.New("no enabled targets")

// historyKeep is the number of runs retained in the state store.
const historyKeep = 50

// Engine runs builds for one registry and shared source tree.
type Engine struct {
	mu          sync.Mutex // serializes runs
	reg         *registry.Registry
	sharedRoot  string
	outputBase  string
	discover    binder.DiscoverOptions
	directive   directive.Options
	parallelism int
	only        []string
	binder      *binder.Binder
	store       state.Store
	logger      *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// Registry is the frozen target registry (required).
	Registry *registry.Registry
	// SharedRoot is the shared source tree.
	SharedRoot string
	// OutputBase is the parent of every target's output root.
	OutputBase string
	// Descriptor is the build descriptor shared by every context.
	Descriptor string
	// Discover filters the shared tree. OutputBase is always skipped.
	Discover binder.DiscoverOptions
	// Directive configures directive syntax.
	Directive directive.Options
	// Mapper resolves per-target dependency requests (optional).
	Mapper coords.Resolver
	// Parallelism bounds concurrent targets; 0 means GOMAXPROCS.
	Parallelism int
	// Targets restricts a run to these ids (optional, all enabled if empty).
	Targets []string
	// Store records run history (optional).
	Store state.Store
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("engine requires a registry")
	}
	if cfg.SharedRoot == "" {
		return nil, fmt.Errorf("engine requires a shared root")
	}
	if cfg.OutputBase == "" {
		return nil, fmt.Errorf("engine requires an output directory")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	logger.Debug("initializing engine",
		"shared_root", cfg.SharedRoot,
		"output", cfg.OutputBase,
		"targets", cfg.Registry.Len(),
		"parallelism", parallelism)

	return &Engine{
		reg:         cfg.Registry,
		sharedRoot:  cfg.SharedRoot,
		outputBase:  cfg.OutputBase,
		discover:    cfg.Discover,
		directive:   cfg.Directive,
		parallelism: parallelism,
		only:        cfg.Targets,
		binder: binder.New(binder.Config{
			OutputBase: cfg.OutputBase,
			SharedRoot: cfg.SharedRoot,
			Descriptor: cfg.Descriptor,
			Mapper:     cfg.Mapper,
			Logger:     logger,
		}),
		store:  cfg.Store,
		logger: logger,
	}, nil
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Binder returns the binder used for every target.
func (e *Engine) Binder() *binder.Binder { return e.binder }

// Store returns the run history store, or nil when history is off.
func (e *Engine) Store() state.Store { return e.store }

// Source is the validated shared tree.
type Source struct {
	Units      []*directive.Unit
	Verbatim   int // units copied without processing
	Directives int // conditional blocks across all units
}

// Load discovers and parses the shared tree and checks every version
// reference against the registry, disabled targets included. Every malformed
// unit and unknown reference is reported, joined into one error.
func (e *Engine) Load() (*Source, error) {
	files, err := binder.Discover(e.sharedRoot, e.discover)
	if err != nil {
		return nil, err
	}
	units, err := binder.Prepare(files, e.directive)

	// well-formed units are checked even when others are malformed
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	src := &Source{Units: units}
	for _, u := range units {
		src.Directives += u.Directives()
		if err := u.Validate(e.reg); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range files {
		if f.Verbatim {
			src.Verbatim++
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	e.logger.Debug("loaded shared tree", "units", len(units), "directives", src.Directives, "verbatim", src.Verbatim)
	return src, nil
}

// ExpandFile expands one file of the shared tree for the target with the
// given id, disabled or not, without writing anything.
func (e *Engine) ExpandFile(rel, id string) ([]byte, error) {
	t, ok := e.reg.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("unknown target %q", id)
	}
	p := filepath.Join(e.sharedRoot, filepath.FromSlash(rel))
	data, err := os.ReadFile(p) //nolint:gosec // G304: path is chosen by the user on the command line
	if err != nil {
		return nil, err
	}
	slash := filepath.ToSlash(rel)
	return directive.Expand(data, slash, t, e.reg, e.directive)
}

// targets returns the targets a run binds, in rank order.
func (e *Engine) targets() ([]registry.Target, error) {
	if len(e.only) == 0 {
		return e.reg.EnabledTargets(), nil
	}

	want := make(map[string]bool, len(e.only))
	for _, id := range e.only {
		t, ok := e.reg.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown target %q", id)
		}
		if !t.Enabled {
			return nil, fmt.Errorf("target %q is disabled", id)
		}
		want[id] = true
	}

	var out []registry.Target
	for _, t := range e.reg.EnabledTargets() {
		if want[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}
