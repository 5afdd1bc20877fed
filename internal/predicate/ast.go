// Package predicate parses and evaluates version predicates such as
// GTE 1.20 or AND (GTE 1.20) (NOT (EQ 1.20.4)).
//
// Comparisons use ranks from the version registry, never the text of the
// version ids.
package predicate

import (
	"strconv"
	"strings"
)

// Op identifies a predicate operator.
type Op int

// Op constants.
const (
	OpEQ Op = iota
	OpGTE
	OpLTE
	OpRange
	OpNot
	OpAnd
	OpOr
)

func (o Op) String() string {
	switch o {
	case OpEQ:
		return "EQ"
	case OpGTE:
		return "GTE"
	case OpLTE:
		return "LTE"
	case OpRange:
		return "RANGE"
	case OpNot:
		return "NOT"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return "UNKNOWN"
	}
}

// Expr is a parsed predicate.
type Expr interface {
	// String renders the canonical prefix form.
	String() string
	expr()
}

// Compare is EQ, GTE or LTE against a single version.
type Compare struct {
	Op      Op
	Version string
}

// Range is true for versions between Low and High, inclusive.
type Range struct {
	Low, High string
}

// Not negates X.
type Not struct {
	X Expr
}

// Binary is AND or OR.
type Binary struct {
	Op   Op
	X, Y Expr
}

func (*Compare) expr() {}
func (*Range) expr()   {}
func (*Not) expr()     {}
func (*Binary) expr()  {}

func (c *Compare) String() string { return c.Op.String() + " " + quote(c.Version) }
func (r *Range) String() string   { return "RANGE " + quote(r.Low) + " " + quote(r.High) }
func (n *Not) String() string     { return "NOT " + group(n.X) }
func (b *Binary) String() string  { return b.Op.String() + " " + group(b.X) + " " + group(b.Y) }

// Versions returns every version id referenced by e, in source order,
// without duplicates.
func Versions(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *Compare:
			add(n.Version)
		case *Range:
			add(n.Low)
			add(n.High)
		case *Not:
			walk(n.X)
		case *Binary:
			walk(n.X)
			walk(n.Y)
		}
	}
	walk(e)
	return out
}

func group(e Expr) string {
	return "(" + e.String() + ")"
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t()\"") {
		return strconv.Quote(v)
	}
	return v
}
