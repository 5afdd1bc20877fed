package binder

import "fmt"

// ContextBindError reports a target whose build context could not be bound.
// It is scoped to one target and never affects the others.
type ContextBindError struct {
	Target string
	Path   string
	Err    error
}

func (e *ContextBindError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("bind %s (%s): %v", e.Target, e.Path, e.Err)
	}
	return fmt.Sprintf("bind %s: %v", e.Target, e.Err)
}

func (e *ContextBindError) Unwrap() error { return e.Err }

func bindErr(target, path string, err error) *ContextBindError {
	return &ContextBindError{Target: target, Path: path, Err: err}
}
