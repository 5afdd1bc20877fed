package directive

import (
	"fmt"

	"github.com/verforge/verforge/internal/predicate"
)

// MalformedDirectiveError reports a directive that cannot be parsed. It names
// the source unit and byte offset of the offending tag.
type MalformedDirectiveError struct {
	Pos   Position
	Msg   string
	Cause error // underlying predicate.SyntaxError, if any
}

func newMalformed(pos Position, format string, args ...any) *MalformedDirectiveError {
	return &MalformedDirectiveError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Unit returns the name of the source unit.
func (e *MalformedDirectiveError) Unit() string { return e.Pos.Unit }

// Offset returns the byte offset of the error in the unit.
func (e *MalformedDirectiveError) Offset() int { return e.Pos.Offset }

func (e *MalformedDirectiveError) Error() string {
	base := fmt.Sprintf("%s (offset %d): malformed directive: %s", e.Pos, e.Pos.Offset, e.Msg)
	if e.Cause != nil {
		return base + ": " + e.Cause.Error()
	}
	return base
}

func (e *MalformedDirectiveError) Unwrap() error { return e.Cause }

// ReferenceError attaches a directive position to a predicate evaluation
// failure, typically a *predicate.UnknownVersionReferenceError.
type ReferenceError struct {
	Pos Position
	Err error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s (offset %d): %v", e.Pos, e.Pos.Offset, e.Err)
}

func (e *ReferenceError) Unwrap() error { return e.Err }

func unknownRef(ref reference) error {
	return &ReferenceError{Pos: ref.pos, Err: &predicate.UnknownVersionReferenceError{Version: ref.version}}
}
