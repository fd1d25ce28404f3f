package engine

// Event is emitted by the engine at every decision point. Each rule gets
// exactly one event per terminal transition, plus zero or more informational
// events (Start). How events are rendered is the sink's business.
type Event interface {
	event()
}

// Skip reports a rule judged up to date. IsDirectTarget distinguishes a
// requested target from an ancestor skipped along the way; sinks typically
// render the former more visibly.
type Skip struct {
	Rule           *Rule
	IsDirectTarget bool
}

// Start reports that a rule's action is about to run.
type Start struct {
	Rule *Rule
}

// Done reports a rule that ran to completion.
type Done struct {
	Rule *Rule
}

// DryRun reports a rule that would run, without running it.
type DryRun struct {
	Rule *Rule
}

// UpdateInfeasible reports a rule that cannot be updated because a
// dependency failed. Reason names the dependency.
type UpdateInfeasible struct {
	Rule   *Rule
	Reason string
}

// UpdateCheckError reports a staleness evaluation that itself failed,
// e.g. a missing or sentinel-stamped input outside dry-run.
type UpdateCheckError struct {
	Rule *Rule
	Err  error
}

// PreProcError reports a pre-processing failure (output directory creation).
type PreProcError struct {
	Rule *Rule
	Err  error
}

// ExecError reports an action failure.
type ExecError struct {
	Rule *Rule
	Err  error
}

// PostProcError reports a post-processing failure (hashing or cache write).
type PostProcError struct {
	Rule *Rule
	Err  error
}

// FatalError reports an engine-internal invariant violation.
type FatalError struct {
	Err error
}

// StopOnFail reports that dispatch of new work was halted after a failure.
type StopOnFail struct{}

func (Skip) event()             {}
func (Start) event()            {}
func (Done) event()             {}
func (DryRun) event()           {}
func (UpdateInfeasible) event() {}
func (UpdateCheckError) event() {}
func (PreProcError) event()     {}
func (ExecError) event()        {}
func (PostProcError) event()    {}
func (FatalError) event()       {}
func (StopOnFail) event()       {}

// EventSink receives engine events. Implementations must be safe for
// concurrent use; workers emit from multiple goroutines.
type EventSink interface {
	Emit(Event)
}

type discardSink struct{}

func (discardSink) Emit(Event) {}
