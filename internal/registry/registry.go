// Package registry provides the ordered catalog of build target versions.
// A Builder collects declarations in order; Freeze turns it into an immutable
// Registry whose ranks define the total order used by version predicates.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/verforge/verforge/internal/coords"
	"golang.org/x/mod/semver"
)

// Ordering selects how ranks are assigned.
type Ordering string

// Ordering policies.
const (
	// OrderDeclared ranks targets by declaration order. This is the default.
	OrderDeclared Ordering = "declared"
	// OrderSemver ranks targets by semantic version, ties broken by declaration order.
	OrderSemver Ordering = "semver"
)

// ErrFrozen is returned when registering into a builder that was already frozen.
var ErrFrozen = errors.New("registry is frozen")

// validID restricts ids to characters that are safe as a single path element.
var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)

// Target is one platform/API version the shared source is compiled against.
type Target struct {
	ID           string
	Enabled      bool
	Rank         int
	Dependencies []coords.Request
}

// Builder collects target declarations. It is not safe for concurrent use.
type Builder struct {
	ordering Ordering
	targets  []Target
	index    map[string]int
	frozen   bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithOrdering delegates rank assignment to the given policy.
func WithOrdering(o Ordering) Option {
	return func(b *Builder) { b.ordering = o }
}

// NewBuilder returns an empty builder using declaration order.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		ordering: OrderDeclared,
		index:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register appends a target, preserving insertion order.
func (b *Builder) Register(id string, enabled bool, deps ...coords.Request) error {
	if b.frozen {
		return ErrFrozen
	}
	id = strings.TrimSpace(id)
	if !validID.MatchString(id) || strings.Contains(id, "..") {
		return &InvalidVersionError{ID: id, Reason: "must be a single path-safe token"}
	}
	if _, dup := b.index[id]; dup {
		return &DuplicateTargetError{ID: id}
	}
	b.index[id] = len(b.targets)
	b.targets = append(b.targets, Target{
		ID:           id,
		Enabled:      enabled,
		Dependencies: append([]coords.Request(nil), deps...),
	})
	return nil
}

// Freeze ends the declaration phase and assigns ranks.
func (b *Builder) Freeze() (*Registry, error) {
	if b.frozen {
		return nil, ErrFrozen
	}

	order := make([]int, len(b.targets))
	for i := range order {
		order[i] = i
	}

	switch b.ordering {
	case OrderDeclared, "":
	case OrderSemver:
		for _, t := range b.targets {
			if !semver.IsValid(canonical(t.ID)) {
				return nil, &InvalidVersionError{ID: t.ID, Reason: "not a semantic version"}
			}
		}
		sort.SliceStable(order, func(i, j int) bool {
			return semver.Compare(canonical(b.targets[order[i]].ID), canonical(b.targets[order[j]].ID)) < 0
		})
	default:
		return nil, fmt.Errorf("unknown ordering policy %q", b.ordering)
	}

	r := &Registry{
		ordering: b.ordering,
		targets:  make([]Target, len(b.targets)),
		byID:     make(map[string]int, len(b.targets)),
	}
	for rank, idx := range order {
		t := b.targets[idx]
		t.Rank = rank
		r.targets[rank] = t
		r.byID[t.ID] = rank
	}

	b.frozen = true
	return r, nil
}

// Registry is the immutable, ordered set of targets for one run.
// All accessors return copies, so it is safe to share across goroutines.
type Registry struct {
	ordering Ordering
	targets  []Target // indexed by rank
	byID     map[string]int
}

// Ordering returns the policy the ranks were derived from.
func (r *Registry) Ordering() Ordering { return r.ordering }

// Len returns the number of declared targets, enabled or not.
func (r *Registry) Len() int { return len(r.targets) }

// Targets returns every declared target in rank order.
func (r *Registry) Targets() []Target {
	out := make([]Target, len(r.targets))
	for i, t := range r.targets {
		out[i] = t.clone()
	}
	return out
}

// EnabledTargets returns the enabled targets in rank order. Ranks are the
// declared ranks, not positions within the filtered slice.
func (r *Registry) EnabledTargets() []Target {
	var out []Target
	for _, t := range r.targets {
		if t.Enabled {
			out = append(out, t.clone())
		}
	}
	return out
}

// Lookup returns the target with the given id.
func (r *Registry) Lookup(id string) (Target, bool) {
	rank, ok := r.byID[id]
	if !ok {
		return Target{}, false
	}
	return r.targets[rank].clone(), true
}

// Rank returns the rank of id. Disabled targets keep their rank.
func (r *Registry) Rank(id string) (int, bool) {
	rank, ok := r.byID[id]
	return rank, ok
}

// WithEnabled returns a copy of the registry with one target's flag changed.
// Ranks are unchanged.
func (r *Registry) WithEnabled(id string, enabled bool) (*Registry, error) {
	rank, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown target %q", id)
	}
	cp := &Registry{
		ordering: r.ordering,
		targets:  r.Targets(),
		byID:     r.byID,
	}
	cp.targets[rank].Enabled = enabled
	return cp, nil
}

func (t Target) clone() Target {
	t.Dependencies = append([]coords.Request(nil), t.Dependencies...)
	return t
}

// canonical prefixes a bare version with "v" as x/mod/semver expects.
func canonical(id string) string {
	if strings.HasPrefix(id, "v") {
		return id
	}
	return "v" + id
}
