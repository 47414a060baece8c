package goap

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPlanFound reports that the search frontier was exhausted without
	// reaching the goal.
	ErrNoPlanFound = errors.New("no viable plan")

	// ErrSearchBudgetExceeded reports that the search stopped because the
	// iteration cap was hit or every remaining candidate exceeded the cost cap.
	ErrSearchBudgetExceeded = errors.New("search budget exceeded")
)

// PreconditionError is returned by Action.Apply when the state does not
// satisfy the action's preconditions.
type PreconditionError struct {
	Action string
	// Unmet lists the precondition keys that did not match, sorted.
	Unmet []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("action '%s' cannot apply: preconditions not met %v", e.Action, e.Unmet)
}

// UnknownExecutionTypeError is returned when an action carries an execution
// strategy outside the supported set.
type UnknownExecutionTypeError struct {
	Action string
	Type   ExecutionType
}

func (e *UnknownExecutionTypeError) Error() string {
	return fmt.Sprintf("action '%s' has unknown execution type %q", e.Action, e.Type)
}

// ActionExecutionError wraps a failure returned by an action's executor.
type ActionExecutionError struct {
	Action string
	Err    error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action '%s' execution failed: %v", e.Action, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}

// InvalidActionError is returned when registering a malformed action.
type InvalidActionError struct {
	Action string
	Reason string
}

func (e *InvalidActionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("invalid action: %s", e.Reason)
	}
	return fmt.Sprintf("invalid action '%s': %s", e.Action, e.Reason)
}
