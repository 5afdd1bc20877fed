package predicate

import (
	"errors"
	"fmt"

	"github.com/verforge/verforge/internal/registry"
)

// Ranker looks up the rank of a version id. *registry.Registry implements it.
type Ranker interface {
	Rank(id string) (int, bool)
}

var _ Ranker = (*registry.Registry)(nil)

// Eval evaluates e for target t. Every referenced version is checked, even in
// branches that do not decide the result, so a typo in a version id can never
// silently drop code.
func Eval(e Expr, t registry.Target, r Ranker) (bool, error) {
	switch n := e.(type) {
	case *Compare:
		v, err := rank(r, n.Version)
		if err != nil {
			return false, err
		}
		switch n.Op {
		case OpEQ:
			return t.Rank == v, nil
		case OpGTE:
			return t.Rank >= v, nil
		case OpLTE:
			return t.Rank <= v, nil
		}
		return false, fmt.Errorf("invalid comparison operator %s", n.Op)

	case *Range:
		lo, err := rank(r, n.Low)
		if err != nil {
			return false, err
		}
		hi, err := rank(r, n.High)
		if err != nil {
			return false, err
		}
		return t.Rank >= lo && t.Rank <= hi, nil

	case *Not:
		x, err := Eval(n.X, t, r)
		return !x, err

	case *Binary:
		x, errX := Eval(n.X, t, r)
		y, errY := Eval(n.Y, t, r)
		if err := errors.Join(errX, errY); err != nil {
			return false, err
		}
		if n.Op == OpAnd {
			return x && y, nil
		}
		return x || y, nil
	}
	return false, fmt.Errorf("unsupported predicate %T", e)
}

// Validate checks that every version referenced by e is known to r.
func Validate(e Expr, r Ranker) error {
	var errs []error
	for _, v := range Versions(e) {
		if _, err := rank(r, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func rank(r Ranker, id string) (int, error) {
	v, ok := r.Rank(id)
	if !ok {
		return 0, &UnknownVersionReferenceError{Version: id}
	}
	return v, nil
}
