// Package directive expands version-conditional directives in shared source.
//
// Directives are comment-safe tags, by default:
//
//	/*#if GTE 1.20*/ ... /*#elif EQ 1.19.4*/ ... /*#else*/ ... /*#endif*/
//
// A source unit is parsed once into a tree of text spans and conditional
// blocks, then expanded once per target.
package directive

import (
	"fmt"

	"github.com/verforge/verforge/internal/predicate"
)

// Position tracks source location for error reporting.
type Position struct {
	Unit   string
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Column int // 1-based, in runes
}

func (p Position) String() string {
	if p.Unit != "" {
		return fmt.Sprintf("%s:%d:%d", p.Unit, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Node is the interface for all unit tree nodes.
type Node interface {
	Pos() Position
	node() // marker method to restrict implementation
}

type nodeBase struct {
	pos Position
}

func (n *nodeBase) Pos() Position { return n.pos }
func (n *nodeBase) node()         {}

// TextNode is a literal span, copied verbatim when it survives.
type TextNode struct {
	nodeBase
	Text string
}

// IfBlock is an if/elif/else chain. The first branch whose predicate holds
// is expanded; with none, Else is expanded (and may be empty).
type IfBlock struct {
	nodeBase
	Branches []Branch
	Else     []Node
}

// Branch is one guarded body of an IfBlock.
type Branch struct {
	Pred   predicate.Expr
	Source string // predicate text as written
	Body   []Node
	pos    Position
}

// Pos returns the position of the tag that opened the branch.
func (b Branch) Pos() Position { return b.pos }

// reference is a version id used by a predicate, kept with the position of
// its tag for error reporting.
type reference struct {
	version string
	pos     Position
}

// Unit is a parsed source unit.
type Unit struct {
	Name       string
	Nodes      []Node
	size       int
	directives int
	refs       []reference
}

// HasDirectives reports whether the unit contains any conditional block.
func (u *Unit) HasDirectives() bool { return u.directives > 0 }

// Directives returns the number of conditional blocks, nested ones included.
func (u *Unit) Directives() int { return u.directives }

// Size returns the length of the source the unit was parsed from.
func (u *Unit) Size() int { return u.size }

// Versions returns the distinct version ids referenced by the unit's
// predicates, in source order.
func (u *Unit) Versions() []string {
	var out []string
	seen := make(map[string]bool)
	for _, ref := range u.refs {
		if !seen[ref.version] {
			seen[ref.version] = true
			out = append(out, ref.version)
		}
	}
	return out
}

// Literal returns a unit holding data as a single text span. It is used for
// files that are copied without directive processing.
func Literal(name string, data []byte) *Unit {
	u := &Unit{Name: name, size: len(data)}
	if len(data) > 0 {
		u.Nodes = []Node{&TextNode{nodeBase: nodeBase{pos: Position{Unit: name, Line: 1, Column: 1}}, Text: string(data)}}
	}
	return u
}
