package predicate

import "fmt"

// SyntaxError reports a malformed predicate. Offset is a byte offset into the
// predicate source.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("predicate offset %d: %s", e.Offset, e.Msg)
}

// UnknownVersionReferenceError is returned when a predicate names a version
// that is not declared in the registry.
type UnknownVersionReferenceError struct {
	Version string
}

func (e *UnknownVersionReferenceError) Error() string {
	return fmt.Sprintf("unknown version reference %q", e.Version)
}
