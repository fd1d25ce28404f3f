package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Options configures one engine invocation.
type Options struct {
	// DryRun evaluates staleness without running actions or mutating
	// any filesystem state.
	DryRun bool
	// StopOnFail halts dispatch of new rules after the first failure.
	// In-flight work is never interrupted.
	StopOnFail bool
	// Concurrency bounds the worker pool. Zero or negative means 1,
	// i.e. strictly sequential execution.
	Concurrency int
	// Events receives a typed event per decision point. Nil discards.
	Events EventSink
}

// outcome is a worker's verdict for one rule.
type outcome struct {
	rule   *Rule
	status Status
	err    error
}

// runner holds per-invocation execution state.
type runner struct {
	rc      *RunContext
	sink    EventSink
	targets map[*Rule]bool
}

// Run walks the dependency subgraph reachable from targets and brings every
// rule up to date, in dependency order, with at most opts.Concurrency rules
// executing at once.
//
// Ordinary build failures never surface as a returned error: they are
// reported per rule in the Report and as events. The returned error is
// reserved for setup problems (a malformed or cyclic graph) and internal
// invariant violations.
func Run(ctx context.Context, targets []*Rule, opts Options) (*Report, error) {
	sink := opts.Events
	if sink == nil {
		sink = discardSink{}
	}
	conc := opts.Concurrency
	if conc < 1 {
		conc = 1
	}

	order, err := closure(targets)
	if err != nil {
		return nil, err
	}

	e := &runner{
		rc:      NewRunContext(opts.DryRun, opts.StopOnFail),
		sink:    sink,
		targets: make(map[*Rule]bool, len(targets)),
	}
	for _, t := range targets {
		e.targets[t] = true
	}

	state := make(map[*Rule]Status, len(order))
	errs := make(map[*Rule]error)
	pending := make(map[*Rule]int, len(order))
	children := make(map[*Rule][]*Rule)
	for _, r := range order {
		state[r] = StatusPending
		pending[r] = len(r.Deps)
		for _, dep := range r.Deps {
			children[dep] = append(children[dep], r)
		}
	}

	var ready []*Rule
	for _, r := range order {
		if pending[r] == 0 {
			ready = append(ready, r)
		}
	}

	// settle propagates a terminal state to dependents: a child whose
	// dependencies are all terminal either becomes ready or, if any
	// dependency failed, is marked unreachable (which cascades).
	aborted := false
	var settle func(r *Rule)
	settle = func(r *Rule) {
		for _, c := range children[r] {
			pending[c]--
			if pending[c] != 0 || state[c] != StatusPending {
				continue
			}
			var bad *Rule
			for _, d := range c.Deps {
				if ds := state[d]; ds == StatusFailed || ds == StatusUnreachable {
					bad = d
					break
				}
			}
			switch {
			case bad != nil:
				state[c] = StatusUnreachable
				e.sink.Emit(UpdateInfeasible{
					Rule:   c,
					Reason: fmt.Sprintf("dependency %s is %s", bad.Name, state[bad]),
				})
				settle(c)
			case !aborted:
				ready = append(ready, c)
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(conc)
	doneCh := make(chan outcome, len(order))
	inFlight := 0

	for {
		// Dispatch ready rules while worker slots are free. Slots are
		// accounted here, not via a blocking Go call, so a failure can
		// halt dispatch before the next ready rule is handed out.
		for !aborted && len(ready) > 0 && inFlight < conc {
			r := ready[0]
			ready = ready[1:]
			inFlight++
			g.Go(func() error {
				doneCh <- e.process(ctx, r)
				return nil
			})
		}
		if inFlight == 0 {
			break
		}

		oc := <-doneCh
		inFlight--
		state[oc.rule] = oc.status
		if oc.err != nil {
			errs[oc.rule] = oc.err
		}
		if oc.status == StatusFailed && opts.StopOnFail && !aborted {
			aborted = true
			e.sink.Emit(StopOnFail{})
		}
		settle(oc.rule)
	}
	_ = g.Wait() // outcomes are carried through doneCh

	if !aborted {
		for _, r := range order {
			if state[r] == StatusPending {
				err := fmt.Errorf("engine: rule %s never reached a terminal state", r.Name)
				e.sink.Emit(FatalError{Err: err})
				return nil, err
			}
		}
	}

	rep := &Report{Results: make([]RuleResult, 0, len(order))}
	for _, r := range order {
		rep.Results = append(rep.Results, RuleResult{Rule: r, Status: state[r], Err: errs[r]})
	}
	return rep, nil
}

// process takes one rule through evaluation and, if stale, execution.
// It emits exactly one terminal event for the rule.
func (e *runner) process(ctx context.Context, r *Rule) outcome {
	stale, err := ShouldUpdate(r, e.rc)
	if err != nil {
		e.sink.Emit(UpdateCheckError{Rule: r, Err: err})
		return outcome{rule: r, status: StatusFailed, err: &RuleError{Rule: r, Phase: PhaseUpdateCheck, Err: err}}
	}
	if !stale {
		e.sink.Emit(Skip{Rule: r, IsDirectTarget: e.targets[r]})
		return outcome{rule: r, status: StatusSkipped}
	}
	if e.rc.DryRun {
		e.rc.MarkUpdated(r)
		e.sink.Emit(DryRun{Rule: r})
		return outcome{rule: r, status: StatusWouldRun}
	}

	if err := preprocess(r); err != nil {
		// The action never started, so outputs are left untouched.
		e.sink.Emit(PreProcError{Rule: r, Err: err})
		return outcome{rule: r, status: StatusFailed, err: &RuleError{Rule: r, Phase: PhasePreProc, Err: err}}
	}

	e.sink.Emit(Start{Rule: r})
	if err := invoke(ctx, r); err != nil {
		postprocessFailure(r)
		e.sink.Emit(ExecError{Rule: r, Err: err})
		return outcome{rule: r, status: StatusFailed, err: &RuleError{Rule: r, Phase: PhaseExec, Err: err}}
	}
	if err := postprocessSuccess(r); err != nil {
		postprocessFailure(r)
		e.sink.Emit(PostProcError{Rule: r, Err: err})
		return outcome{rule: r, status: StatusFailed, err: &RuleError{Rule: r, Phase: PhasePostProc, Err: err}}
	}

	e.rc.MarkUpdated(r)
	e.sink.Emit(Done{Rule: r})
	return outcome{rule: r, status: StatusDone}
}

// invoke runs the action, converting a panic into an ordinary error so a
// misbehaving action fails its own rule instead of the whole process.
func invoke(ctx context.Context, r *Rule) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("action panic: %v", p)
		}
	}()
	return r.Action.Fn(ctx)
}
