package directive

import (
	"errors"
	"strings"

	"github.com/verforge/verforge/internal/predicate"
	"github.com/verforge/verforge/internal/registry"
)

// Validate checks every version referenced by the unit against r, including
// references inside branches no target would ever take.
func (u *Unit) Validate(r predicate.Ranker) error {
	var errs []error
	for _, ref := range u.refs {
		if _, ok := r.Rank(ref.version); !ok {
			errs = append(errs, unknownRef(ref))
		}
	}
	return errors.Join(errs...)
}

// Expand renders the unit for target t. Surviving text spans are
// concatenated in source order; a directive whose branches all evaluate false
// contributes nothing, nested content included. The result is deterministic
// for a given unit, target and registry.
//
// Expand validates the unit against r first, so it is safe to call on its
// own: a reference in an untaken branch fails here instead of surfacing only
// for the target that takes it. The check is a map lookup per reference.
func (u *Unit) Expand(t registry.Target, r predicate.Ranker) ([]byte, error) {
	if err := u.Validate(r); err != nil {
		return nil, err
	}
	var b strings.Builder
	b.Grow(u.size)
	if err := expandNodes(&b, u.Nodes, t, r); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func expandNodes(b *strings.Builder, nodes []Node, t registry.Target, r predicate.Ranker) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case *TextNode:
			b.WriteString(n.Text)
		case *IfBlock:
			body, err := selectBranch(n, t, r)
			if err != nil {
				return err
			}
			if err := expandNodes(b, body, t, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func selectBranch(blk *IfBlock, t registry.Target, r predicate.Ranker) ([]Node, error) {
	for _, br := range blk.Branches {
		ok, err := predicate.Eval(br.Pred, t, r)
		if err != nil {
			return nil, &ReferenceError{Pos: br.pos, Err: err}
		}
		if ok {
			return br.Body, nil
		}
	}
	return blk.Else, nil
}

// Expand parses src and expands it for t in one call.
func Expand(src []byte, name string, t registry.Target, r predicate.Ranker, opts Options) ([]byte, error) {
	u, err := Parse(src, name, opts)
	if err != nil {
		return nil, err
	}
	return u.Expand(t, r)
}
