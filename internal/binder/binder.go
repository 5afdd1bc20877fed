// Package binder binds targets to isolated build contexts and materializes
// the expanded source tree of each one.
package binder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verforge/verforge/internal/coords"
	"github.com/verforge/verforge/internal/directive"
	"github.com/verforge/verforge/internal/predicate"
	"github.com/verforge/verforge/internal/registry"
)

// Context is the build context of one target.
type Context struct {
	Target       registry.Target
	SharedRoot   string
	OutputRoot   string
	Descriptor   string
	Dependencies []coords.Coordinate
	Files        []string
}

// Config holds binder configuration.
type Config struct {
	// OutputBase is the parent of every target's output root.
	OutputBase string
	// SharedRoot is the shared source tree. It is never written.
	SharedRoot string
	// Descriptor is the build descriptor shared by every context.
	Descriptor string
	// Mapper resolves dependency requests (optional, pass-through if nil).
	Mapper coords.Resolver
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Now stamps markers (optional, defaults to time.Now).
	Now func() time.Time
}

// Binder creates build contexts. It is safe for concurrent use by targets
// with distinct ids.
type Binder struct {
	outputBase string
	sharedRoot string
	descriptor string
	mapper     coords.Resolver
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a binder.
func New(cfg Config) *Binder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	var mapper coords.Resolver = cfg.Mapper
	if mapper == nil {
		// with no rules every id passes through
		mapper, _ = coords.New(nil, nil)
	}
	return &Binder{
		outputBase: filepath.Clean(cfg.OutputBase),
		sharedRoot: filepath.Clean(cfg.SharedRoot),
		descriptor: cfg.Descriptor,
		mapper:     mapper,
		logger:     logger,
		now:        now,
	}
}

// OutputRoot returns the output directory of the target with the given id.
func (b *Binder) OutputRoot(id string) string {
	return filepath.Join(b.outputBase, id)
}

// Bind expands every unit for t and writes the result under the target's
// output root. The tree is assembled in a staging directory and moved into
// place only when complete, so a failed or cancelled bind leaves no partial
// tree and keeps any previous generation intact. ctx is checked before each
// unit.
func (b *Binder) Bind(ctx context.Context, t registry.Target, r predicate.Ranker, units []*directive.Unit) (*Context, error) {
	out := b.OutputRoot(t.ID)
	if err := b.checkLayout(t.ID, out); err != nil {
		return nil, bindErr(t.ID, out, err)
	}
	exists, err := checkReplaceable(out, t.ID)
	if err != nil {
		return nil, bindErr(t.ID, out, err)
	}

	bc := &Context{
		Target:       t,
		SharedRoot:   b.sharedRoot,
		OutputRoot:   out,
		Descriptor:   b.descriptor,
		Dependencies: b.resolve(t.Dependencies),
	}

	if err := os.MkdirAll(b.outputBase, 0o750); err != nil {
		return nil, bindErr(t.ID, b.outputBase, err)
	}
	staging, err := os.MkdirTemp(b.outputBase, "."+t.ID+".tmp-")
	if err != nil {
		return nil, bindErr(t.ID, b.outputBase, err)
	}
	committed := false
	defer func() {
		if !committed {
			if rmErr := os.RemoveAll(staging); rmErr != nil {
				b.logger.Warn("failed to remove staging directory", "target", t.ID, "path", staging, "error", rmErr)
			}
		}
	}()

	b.logger.Debug("binding target", "target", t.ID, "units", len(units), "staging", staging)

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return nil, bindErr(t.ID, out, err)
		}
		if err := writeUnit(staging, u, t, r); err != nil {
			return nil, bindErr(t.ID, out, err)
		}
		bc.Files = append(bc.Files, u.Name)
	}

	if err := writeMarker(staging, b.marker(bc)); err != nil {
		return nil, bindErr(t.ID, out, fmt.Errorf("write marker: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return nil, bindErr(t.ID, out, err)
	}

	if exists {
		if err := os.RemoveAll(out); err != nil {
			return nil, bindErr(t.ID, out, fmt.Errorf("remove previous output: %w", err))
		}
	}
	if err := os.Rename(staging, out); err != nil {
		return nil, bindErr(t.ID, out, fmt.Errorf("commit output: %w", err))
	}
	committed = true

	b.logger.Debug("bound target", "target", t.ID, "files", len(bc.Files), "output", out)
	return bc, nil
}

// Clean removes the generated tree of the target with the given id. Trees
// without a marker are left alone.
func (b *Binder) Clean(id string) error {
	out := b.OutputRoot(id)
	if err := b.checkLayout(id, out); err != nil {
		return bindErr(id, out, err)
	}
	exists, err := checkReplaceable(out, id)
	if err != nil {
		return bindErr(id, out, err)
	}
	if !exists {
		return nil
	}
	return os.RemoveAll(out)
}

func (b *Binder) resolve(reqs []coords.Request) []coords.Coordinate {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]coords.Coordinate, len(reqs))
	for i, req := range reqs {
		out[i] = b.mapper.Resolve(req.ID, req.Version)
	}
	return out
}

func (b *Binder) marker(bc *Context) *Marker {
	m := &Marker{
		Target:      bc.Target.ID,
		Rank:        bc.Target.Rank,
		GeneratedAt: b.now().UTC(),
		Descriptor:  bc.Descriptor,
		Files:       len(bc.Files),
	}
	for _, c := range bc.Dependencies {
		m.Dependencies = append(m.Dependencies, c.String())
	}
	return m
}

// checkLayout verifies that out is a direct child of the output base named
// by id and is disjoint from the shared root in both directions.
func (b *Binder) checkLayout(id, out string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("target id %q is not a safe directory name", id)
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return err
	}
	absShared, err := filepath.Abs(b.sharedRoot)
	if err != nil {
		return err
	}
	if within(absShared, absOut) {
		return fmt.Errorf("output root overlaps shared root %s", b.sharedRoot)
	}
	if within(absOut, absShared) {
		return fmt.Errorf("output root lies inside shared root %s", b.sharedRoot)
	}
	return nil
}

func writeUnit(dir string, u *directive.Unit, t registry.Target, r predicate.Ranker) error {
	if !filepath.IsLocal(filepath.FromSlash(u.Name)) {
		return fmt.Errorf("unit path %q escapes the output root", u.Name)
	}
	data, err := u.Expand(t, r)
	if err != nil {
		return fmt.Errorf("expand %s: %w", u.Name, err)
	}
	dst := filepath.Join(dir, filepath.FromSlash(u.Name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644) //nolint:gosec // G306: generated sources are meant to be world readable
}

// within reports whether p equals dir or lies below it.
func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}
