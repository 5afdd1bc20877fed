package registry

import "fmt"

// DuplicateTargetError is returned when an id is registered twice.
type DuplicateTargetError struct {
	ID string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("duplicate target %q", e.ID)
}

// InvalidVersionError is returned for ids that cannot be used as targets.
type InvalidVersionError struct {
	ID     string
	Reason string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid target %q: %s", e.ID, e.Reason)
}
