package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRun_Idempotence(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	aOut := filepath.Join(dir, "a.txt")
	bOut := filepath.Join(dir, "b.txt")
	touch(t, src, "seed")

	aOuts := []Artifact{Plain(aOut)}
	a := mustRule(t, "a", aOuts,
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(src)}},
		nil, writeOutputs(aOuts, "a"))
	bOuts := []Artifact{Plain(bOut)}
	b := mustRule(t, "b", bOuts,
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(aOut)}},
		[]*Rule{a}, writeOutputs(bOuts, "b"))

	rep, err := Run(context.Background(), []*Rule{b}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(a) != StatusDone || rep.Status(b) != StatusDone {
		t.Fatalf("first run: a=%s b=%s, want done/done", rep.Status(a), rep.Status(b))
	}

	sink := &recordSink{}
	rep, err = Run(context.Background(), []*Rule{b}, Options{Events: sink})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(a) != StatusSkipped || rep.Status(b) != StatusSkipped {
		t.Fatalf("second run: a=%s b=%s, want skipped/skipped", rep.Status(a), rep.Status(b))
	}
	if !rep.OK() {
		t.Error("second run not OK")
	}

	// b was the requested target; a is only an ancestor.
	for _, e := range sink.all() {
		if s, ok := e.(Skip); ok {
			want := s.Rule == b
			if s.IsDirectTarget != want {
				t.Errorf("Skip(%s).IsDirectTarget = %v", s.Rule.Name, s.IsDirectTarget)
			}
		}
	}
}

func TestRun_PlainInputMonotonicity(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	out := filepath.Join(dir, "out.txt")
	touch(t, src, "seed")

	outs := []Artifact{Plain(out)}
	r := mustRule(t, "r", outs,
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(src)}},
		nil, writeOutputs(outs, "v1"))

	if _, err := Run(context.Background(), []*Rule{r}, Options{}); err != nil {
		t.Fatal(err)
	}

	// Same content, newer timestamp: plain inputs are timestamp-authoritative.
	bumpNewer(t, src, out)
	rep, err := Run(context.Background(), []*Rule{r}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(r) != StatusDone {
		t.Errorf("status = %s, want done (re-run)", rep.Status(r))
	}
}

// The §8 scenario: a tracked input whose mtime changes but whose content is
// unchanged must not re-run the dependent.
func TestRun_ContentHashSuppressesFalseStaleness(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	aOut := filepath.Join(dir, "a.txt")
	bOut := filepath.Join(dir, "b.txt")
	touch(t, src, "seed")

	hasher := &countingHash{}
	aOuts := []Artifact{Plain(aOut)}
	a := mustRule(t, "a", aOuts,
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(src)}},
		nil, writeOutputs(aOuts, "stable-content"))
	bRan := 0
	b := mustRule(t, "b", []Artifact{Plain(bOut)},
		[]Input{{Key: DeepKey{S("src")}, Artifact: TrackedWith(aOut, hasher.fn)}},
		[]*Rule{a}, func(ctx context.Context) error {
			bRan++
			return os.WriteFile(bOut, []byte("b"), 0644)
		})

	rep, err := Run(context.Background(), []*Rule{a, b}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(a) != StatusDone || rep.Status(b) != StatusDone {
		t.Fatalf("first run: a=%s b=%s", rep.Status(a), rep.Status(b))
	}
	if _, err := os.Stat(b.MetadataPath()); err != nil {
		t.Fatalf("metadata cache not written: %v", err)
	}

	// External edit noise: a's output mtime changes, content does not.
	bumpNewer(t, aOut, bOut)
	before := hasher.calls()
	rep, err = Run(context.Background(), []*Rule{a, b}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(b) != StatusSkipped {
		t.Errorf("b = %s, want skipped (hash suppression)", rep.Status(b))
	}
	if bRan != 1 {
		t.Errorf("b ran %d times, want 1", bRan)
	}
	if hasher.calls() <= before {
		t.Error("hash was never consulted on the second run")
	}
}

func TestRun_FailureStampsAllOutputsWithSentinel(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	out1 := filepath.Join(dir, "c1.txt")
	out2 := filepath.Join(dir, "c2.txt")
	touch(t, src, "seed")

	outs := []Artifact{Plain(out1), Plain(out2)}
	fail := false
	c := mustRule(t, "c", outs,
		[]Input{{Key: DeepKey{S("src")}, Artifact: Tracked(src)}},
		nil, func(ctx context.Context) error {
			if err := os.WriteFile(out1, []byte("partial"), 0644); err != nil {
				return err
			}
			if fail {
				return errors.New("boom")
			}
			return os.WriteFile(out2, []byte("full"), 0644)
		})

	if _, err := Run(context.Background(), []*Rule{c}, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(c.MetadataPath()); err != nil {
		t.Fatalf("metadata cache missing after success: %v", err)
	}

	// Change the tracked input and fail half way: out1 is rewritten, out2
	// is not.
	touch(t, src, "seed-v2")
	bumpNewer(t, src, out2)
	fail = true
	sink := &recordSink{}
	rep, err := Run(context.Background(), []*Rule{c}, Options{Events: sink})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(c) != StatusFailed {
		t.Fatalf("status = %s, want failed", rep.Status(c))
	}
	var re *RuleError
	if res := rep.Results[0]; !errors.As(res.Err, &re) || re.Phase != PhaseExec {
		t.Errorf("result err = %v, want execution-phase RuleError", res.Err)
	}
	if n := sink.countOf(func(e Event) bool { _, ok := e.(ExecError); return ok }); n != 1 {
		t.Errorf("ExecError emitted %d times, want 1", n)
	}

	// Both outputs exist, and both carry the sentinel even though one was
	// freshly (partially) written.
	for _, p := range []string{out1, out2} {
		if got := statMTime(t, p).UnixNano(); got != 0 {
			t.Errorf("%s mtime = %d, want sentinel 0", p, got)
		}
	}
	if _, err := os.Stat(c.MetadataPath()); !os.IsNotExist(err) {
		t.Error("metadata cache survived a failure")
	}

	// Sentinel propagation: the rule stays stale until it succeeds again.
	stale, err := ShouldUpdate(c, NewRunContext(false, false))
	if err != nil || !stale {
		t.Errorf("after failure: stale=%v err=%v, want true, nil", stale, err)
	}
}

func TestRun_SentinelInputFailsDependent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	aOut := filepath.Join(dir, "a.txt")
	bOut := filepath.Join(dir, "b.txt")
	touch(t, src, "seed")
	touch(t, aOut, "stale-a")
	setMTime(t, aOut, time.Unix(0, 0)) // a previously failed

	aOuts := []Artifact{Plain(aOut)}
	a := mustRule(t, "a", aOuts,
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(src)}},
		nil, func(ctx context.Context) error { return errors.New("still broken") })
	b := mustRule(t, "b", []Artifact{Plain(bOut)},
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(aOut)}},
		[]*Rule{a}, writeOutputs([]Artifact{Plain(bOut)}, "b"))

	sink := &recordSink{}
	rep, err := Run(context.Background(), []*Rule{b}, Options{Events: sink})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(a) != StatusFailed {
		t.Errorf("a = %s, want failed", rep.Status(a))
	}
	if rep.Status(b) != StatusUnreachable {
		t.Errorf("b = %s, want unreachable", rep.Status(b))
	}
	if n := sink.countOf(func(e Event) bool { _, ok := e.(UpdateInfeasible); return ok }); n != 1 {
		t.Errorf("UpdateInfeasible emitted %d times, want 1", n)
	}
	if rep.OK() {
		t.Error("report must not be OK")
	}
}

func TestRun_DryRunPurityAndPropagation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	aOut := filepath.Join(dir, "a.txt")
	bOut := filepath.Join(dir, "b.txt")
	touch(t, src, "seed")
	touch(t, aOut, "a")
	touch(t, bOut, "b")
	// a is stale (src newer than its output); b looks fresh on disk.
	base := time.Now().Add(-time.Minute)
	setMTime(t, aOut, base)
	setMTime(t, bOut, base.Add(10*time.Second))
	setMTime(t, src, base.Add(20*time.Second))

	invoked := 0
	a := mustRule(t, "a", []Artifact{Plain(aOut)},
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(src)}},
		nil, func(ctx context.Context) error { invoked++; return nil })
	b := mustRule(t, "b", []Artifact{Plain(bOut)},
		[]Input{{Key: DeepKey{S("src")}, Artifact: Tracked(aOut)}},
		[]*Rule{a}, func(ctx context.Context) error { invoked++; return nil })

	aMTime := statMTime(t, aOut)
	bMTime := statMTime(t, bOut)

	sink := &recordSink{}
	rep, err := Run(context.Background(), []*Rule{b}, Options{DryRun: true, Events: sink})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(a) != StatusWouldRun {
		t.Errorf("a = %s, want would-run", rep.Status(a))
	}
	// b is only stale because a was flagged earlier in the same dry run.
	if rep.Status(b) != StatusWouldRun {
		t.Errorf("b = %s, want would-run (propagated)", rep.Status(b))
	}

	if invoked != 0 {
		t.Errorf("actions invoked %d times during dry run", invoked)
	}
	if !statMTime(t, aOut).Equal(aMTime) || !statMTime(t, bOut).Equal(bMTime) {
		t.Error("dry run mutated artifact timestamps")
	}
	if _, err := os.Stat(b.MetadataPath()); !os.IsNotExist(err) {
		t.Error("dry run wrote a metadata cache")
	}
	if n := sink.countOf(func(e Event) bool { _, ok := e.(DryRun); return ok }); n != 2 {
		t.Errorf("DryRun emitted %d times, want 2", n)
	}
}

func TestRun_StopOnFailHaltsNewDispatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	touch(t, src, "seed")

	x := mustRule(t, "x", []Artifact{Plain(filepath.Join(dir, "x.txt"))},
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(src)}},
		nil, func(ctx context.Context) error { return errors.New("boom") })
	yStarted := false
	y := mustRule(t, "y", []Artifact{Plain(filepath.Join(dir, "y.txt"))},
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(src)}},
		nil, func(ctx context.Context) error { yStarted = true; return nil })

	sink := &recordSink{}
	rep, err := Run(context.Background(), []*Rule{x, y},
		Options{StopOnFail: true, Concurrency: 1, Events: sink})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(x) != StatusFailed {
		t.Errorf("x = %s, want failed", rep.Status(x))
	}
	if rep.Status(y) == StatusDone {
		t.Errorf("y = %s; it must not complete after the failure was observed", rep.Status(y))
	}
	if yStarted {
		t.Error("y was dispatched after x failed")
	}
	if n := sink.countOf(func(e Event) bool { _, ok := e.(StopOnFail); return ok }); n != 1 {
		t.Errorf("StopOnFail emitted %d times, want 1", n)
	}
	if n := sink.countOf(func(e Event) bool {
		s, ok := e.(Start)
		return ok && s.Rule == y
	}); n != 0 {
		t.Error("Start emitted for y after abort")
	}
}

func TestRun_ConcurrentDiamondRespectsDependencyOrder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	touch(t, src, "seed")

	var mu sync.Mutex
	var order []string
	mkAction := func(name string, outs []Artifact) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return writeOutputs(outs, name)(ctx)
		}
	}

	rootOuts := []Artifact{Plain(filepath.Join(dir, "root.txt"))}
	root := mustRule(t, "root", rootOuts,
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(src)}},
		nil, mkAction("root", rootOuts))

	mids := make([]*Rule, 4)
	var midIns []Input
	for i := range mids {
		outs := []Artifact{Plain(filepath.Join(dir, fmt.Sprintf("mid%d.txt", i)))}
		mids[i] = mustRule(t, fmt.Sprintf("mid%d", i), outs,
			[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(rootOuts[0].Path)}},
			[]*Rule{root}, mkAction(fmt.Sprintf("mid%d", i), outs))
		midIns = append(midIns, Input{Key: DeepKey{S("parts"), I(i)}, Artifact: Plain(outs[0].Path)})
	}

	topOuts := []Artifact{Plain(filepath.Join(dir, "top.txt"))}
	top := mustRule(t, "top", topOuts, midIns, mids, mkAction("top", topOuts))

	rep, err := Run(context.Background(), []*Rule{top}, Options{Concurrency: 4})
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range rep.Results {
		if res.Status != StatusDone {
			t.Errorf("%s = %s, want done", res.Rule.Name, res.Status)
		}
	}

	if len(order) != 6 {
		t.Fatalf("ran %d rules, want 6", len(order))
	}
	if order[0] != "root" {
		t.Errorf("root ran %s-th, must run first", order[0])
	}
	if order[len(order)-1] != "top" {
		t.Errorf("top ran before its dependencies finished: %v", order)
	}
}

func TestRun_CycleIsSetupError(t *testing.T) {
	dir := t.TempDir()
	a := mustRule(t, "a", []Artifact{Plain(filepath.Join(dir, "a.txt"))}, nil, nil, nil)
	b := mustRule(t, "b", []Artifact{Plain(filepath.Join(dir, "b.txt"))}, nil, []*Rule{a}, nil)
	a.Deps = []*Rule{b} // forged after construction; the engine must still catch it

	_, err := Run(context.Background(), []*Rule{a}, Options{})
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
}

func TestRun_MissingInputIsRuleFailure(t *testing.T) {
	dir := t.TempDir()
	r := mustRule(t, "r", []Artifact{Plain(filepath.Join(dir, "out.txt"))},
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(filepath.Join(dir, "gone.txt"))}},
		nil, nil)

	sink := &recordSink{}
	rep, err := Run(context.Background(), []*Rule{r}, Options{Events: sink})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(r) != StatusFailed {
		t.Fatalf("status = %s, want failed", rep.Status(r))
	}
	if !errors.Is(rep.Results[0].Err, ErrMissingInput) {
		t.Errorf("err = %v, want ErrMissingInput", rep.Results[0].Err)
	}
	if n := sink.countOf(func(e Event) bool { _, ok := e.(UpdateCheckError); return ok }); n != 1 {
		t.Errorf("UpdateCheckError emitted %d times, want 1", n)
	}
}

func TestRun_ActionPanicIsExecutionFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	touch(t, src, "seed")

	r := mustRule(t, "r", []Artifact{Plain(filepath.Join(dir, "out.txt"))},
		[]Input{{Key: DeepKey{S("src")}, Artifact: Plain(src)}},
		nil, func(ctx context.Context) error { panic("oops") })

	rep, err := Run(context.Background(), []*Rule{r}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status(r) != StatusFailed {
		t.Fatalf("status = %s, want failed", rep.Status(r))
	}
	var re *RuleError
	if !errors.As(rep.Results[0].Err, &re) || re.Phase != PhaseExec {
		t.Errorf("err = %v, want execution-phase RuleError", rep.Results[0].Err)
	}
}
