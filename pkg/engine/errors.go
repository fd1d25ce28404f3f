package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput is returned when an input artifact does not exist at
	// evaluation time.
	ErrMissingInput = errors.New("engine: input file is missing")

	// ErrInvalidInput is returned when an input artifact carries the
	// sentinel modification time, meaning it was left behind by a failed
	// run and must not be treated as fresh.
	ErrInvalidInput = errors.New("engine: input file has sentinel mtime")

	// ErrCycle is returned when the rule graph contains a cycle. This is a
	// setup error; cycles are a construction-time defect.
	ErrCycle = errors.New("engine: dependency cycle detected")
)

// Phase identifies where in a rule's lifecycle a failure occurred.
type Phase int

const (
	PhaseUpdateCheck Phase = iota
	PhasePreProc
	PhaseExec
	PhasePostProc
	PhaseFatal
)

func (p Phase) String() string {
	switch p {
	case PhaseUpdateCheck:
		return "update-check"
	case PhasePreProc:
		return "preprocessing"
	case PhaseExec:
		return "execution"
	case PhasePostProc:
		return "post-processing"
	default:
		return "fatal"
	}
}

// RuleError couples a failed rule with the lifecycle phase that failed.
type RuleError struct {
	Rule  *Rule
	Phase Phase
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %s failed: %v", e.Rule.Name, e.Phase, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }
