package plan

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrPlanExists indicates a submission resolved to a pre-existing plan.
	// Callers should send an update instead of a create.
	ErrPlanExists = errors.New("plan already exists; send an update instead")

	// ErrNotFound is returned both when a plan does not exist and when it is
	// not visible to the caller, so responses do not leak existence.
	ErrNotFound = errors.New("plan not found")
)

// ParseError indicates a malformed or unparseable document. It is a client
// error and is never retried.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing document: %s: %v", e.Msg, e.Err)
	}
	return "parsing document: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }
