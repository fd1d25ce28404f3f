package engine

// Status is a rule's state within one invocation.
type Status int

const (
	// StatusPending marks a rule never dispatched, e.g. because dispatch
	// was halted by stop-on-fail before it became ready.
	StatusPending Status = iota
	// StatusSkipped marks a rule judged up to date.
	StatusSkipped
	// StatusDone marks a rule that ran successfully.
	StatusDone
	// StatusWouldRun marks a rule judged stale under dry-run.
	StatusWouldRun
	// StatusFailed marks a rule whose evaluation or execution failed.
	StatusFailed
	// StatusUnreachable marks a rule whose dependency failed.
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSkipped:
		return "skipped"
	case StatusDone:
		return "done"
	case StatusWouldRun:
		return "would-run"
	case StatusFailed:
		return "failed"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// RuleResult is one rule's terminal state. Err is set for failed rules and
// carries the phase-typed *RuleError.
type RuleResult struct {
	Rule   *Rule
	Status Status
	Err    error
}

// Report is the result of one engine invocation, one entry per rule in the
// execution subgraph, dependency order.
type Report struct {
	Results []RuleResult
}

// OK reports overall success: no rule ended failed or unreachable.
func (rep *Report) OK() bool {
	for _, r := range rep.Results {
		if r.Status == StatusFailed || r.Status == StatusUnreachable {
			return false
		}
	}
	return true
}

// Status returns the terminal state of r, or StatusPending if r was not in
// the execution subgraph.
func (rep *Report) Status(r *Rule) Status {
	for _, res := range rep.Results {
		if res.Rule == r {
			return res.Status
		}
	}
	return StatusPending
}
