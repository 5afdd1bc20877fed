// Package coords maps logical plugin and dependency identifiers to concrete
// module coordinates that the host build tool can resolve.
//
// The mapper never touches the network. It computes the coordinate and the
// ordered list of repositories it should be tried against; fetching is the
// job of a Fetcher supplied by the host.
package coords

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchKind selects how a Rule compares against a logical id.
type MatchKind string

// MatchKind values.
const (
	MatchExact  MatchKind = "exact"
	MatchPrefix MatchKind = "prefix"
	MatchGlob   MatchKind = "glob"
)

// Rule rewrites a logical id into a module coordinate.
// Module may reference ${id} and ${version}.
type Rule struct {
	Match  string    `koanf:"match" yaml:"match"`
	Kind   MatchKind `koanf:"kind" yaml:"kind,omitempty"`
	Module string    `koanf:"module" yaml:"module"`
}

// Repository is a resolution source. Declaration order is priority order.
type Repository struct {
	Name string `koanf:"name" yaml:"name"`
	URL  string `koanf:"url" yaml:"url"`
}

// Request is a logical id plus the version asked for.
type Request struct {
	ID      string `koanf:"id" yaml:"id"`
	Version string `koanf:"version" yaml:"version,omitempty"`
}

// Coordinate is the result of mapping a Request.
type Coordinate struct {
	ID      string `json:"id"`
	Module  string `json:"module"`
	Version string `json:"version,omitempty"`
	// Rule is the index of the rule that rewrote the id, or -1 for pass-through.
	Rule int `json:"rule"`
}

// Rewritten reports whether a rule produced this coordinate.
func (c Coordinate) Rewritten() bool { return c.Rule >= 0 }

// String renders module or module:version. A rewritten module that already
// embeds the version is returned as is.
func (c Coordinate) String() string {
	if c.Version == "" || (c.Rewritten() && strings.HasSuffix(c.Module, ":"+c.Version)) {
		return c.Module
	}
	return c.Module + ":" + c.Version
}

// Candidate pairs a coordinate with the repository it is tried against.
type Candidate struct {
	Coordinate Coordinate
	Repository Repository
	Priority   int
}

// Resolver is the plugin-resolution hook the host calls into.
type Resolver interface {
	Resolve(id, version string) Coordinate
}

// Fetcher performs the actual download. It is implemented by the host build
// tool; this module only ever calls it through the interface.
type Fetcher interface {
	Fetch(ctx context.Context, c Candidate) error
}

// Mapper holds an ordered rule list and an ordered repository list.
// It is read-only after New and safe for concurrent use.
type Mapper struct {
	rules []Rule
	repos []Repository
}

var _ Resolver = (*Mapper)(nil)

// New validates rules and returns a Mapper. A rule with no Kind is exact,
// unless its Match contains glob metacharacters.
func New(rules []Rule, repos []Repository) (*Mapper, error) {
	m := &Mapper{
		rules: make([]Rule, 0, len(rules)),
		repos: append([]Repository(nil), repos...),
	}
	for i, r := range rules {
		if r.Match == "" {
			return nil, fmt.Errorf("plugin rule %d: match is required", i)
		}
		if r.Module == "" {
			return nil, fmt.Errorf("plugin rule %d (%s): module is required", i, r.Match)
		}
		if r.Kind == "" {
			r.Kind = MatchExact
			if strings.ContainsAny(r.Match, "*?[{") {
				r.Kind = MatchGlob
			}
		}
		switch r.Kind {
		case MatchExact, MatchPrefix:
		case MatchGlob:
			if !doublestar.ValidatePattern(r.Match) {
				return nil, fmt.Errorf("plugin rule %d (%s): %w", i, r.Match, doublestar.ErrBadPattern)
			}
		default:
			return nil, fmt.Errorf("plugin rule %d (%s): unknown match kind %q", i, r.Match, r.Kind)
		}
		m.rules = append(m.rules, r)
	}
	for i, repo := range m.repos {
		if repo.URL == "" {
			return nil, fmt.Errorf("repository %d (%s): url is required", i, repo.Name)
		}
		if repo.Name == "" {
			m.repos[i].Name = repo.URL
		}
	}
	return m, nil
}

// Resolve applies the first matching rule. With no match the id passes
// through unchanged.
func (m *Mapper) Resolve(id, version string) Coordinate {
	for i, r := range m.rules {
		if !r.matches(id) {
			continue
		}
		return Coordinate{
			ID:      id,
			Module:  expand(r.Module, id, version),
			Version: version,
			Rule:    i,
		}
	}
	return Coordinate{ID: id, Module: id, Version: version, Rule: -1}
}

// ResolveAll maps every request, preserving order.
func (m *Mapper) ResolveAll(reqs []Request) []Coordinate {
	out := make([]Coordinate, len(reqs))
	for i, req := range reqs {
		out[i] = m.Resolve(req.ID, req.Version)
	}
	return out
}

// Candidates lists the resolved coordinate once per repository, in priority
// order. With no repositories configured the list is empty.
func (m *Mapper) Candidates(id, version string) []Candidate {
	c := m.Resolve(id, version)
	out := make([]Candidate, len(m.repos))
	for i, repo := range m.repos {
		out[i] = Candidate{Coordinate: c, Repository: repo, Priority: i}
	}
	return out
}

// Repositories returns the configured repositories in priority order.
func (m *Mapper) Repositories() []Repository {
	return append([]Repository(nil), m.repos...)
}

// Rules returns the normalized rule list.
func (m *Mapper) Rules() []Rule {
	return append([]Rule(nil), m.rules...)
}

// FetchFirst hands candidates to f in priority order and stops at the first
// success. The returned error joins every attempt's failure.
func FetchFirst(ctx context.Context, f Fetcher, candidates []Candidate) (Candidate, error) {
	var errs []string
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		err := f.Fetch(ctx, c)
		if err == nil {
			return c, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", c.Repository.Name, err))
	}
	if len(errs) == 0 {
		return Candidate{}, fmt.Errorf("no repositories configured")
	}
	return Candidate{}, fmt.Errorf("all repositories failed: %s", strings.Join(errs, "; "))
}

func (r Rule) matches(id string) bool {
	switch r.Kind {
	case MatchPrefix:
		return strings.HasPrefix(id, r.Match)
	case MatchGlob:
		ok, _ := doublestar.Match(r.Match, id)
		return ok
	default:
		return id == r.Match
	}
}

func expand(tmpl, id, version string) string {
	return strings.NewReplacer("${id}", id, "${version}", version).Replace(tmpl)
}
