package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// --- filesystem helpers ---

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func setMTime(t *testing.T, path string, tm time.Time) {
	t.Helper()
	if err := os.Chtimes(path, tm, tm); err != nil {
		t.Fatal(err)
	}
}

func statMTime(t *testing.T, path string) time.Time {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return fi.ModTime()
}

// bumpNewer stamps path strictly newer than ref.
func bumpNewer(t *testing.T, path, ref string) {
	t.Helper()
	setMTime(t, path, statMTime(t, ref).Add(10*time.Second))
}

// --- rule helpers ---

func mustRule(t *testing.T, name string, outs []Artifact, ins []Input, deps []*Rule, fn func(ctx context.Context) error) *Rule {
	t.Helper()
	if fn == nil {
		fn = func(ctx context.Context) error { return nil }
	}
	r, err := NewRule(name, outs, ins, deps, Action{Name: name, Fn: fn})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// writeOutputs returns an action body writing content to every output.
func writeOutputs(outs []Artifact, content string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, out := range outs {
			if err := os.WriteFile(out.Path, []byte(content), 0644); err != nil {
				return err
			}
		}
		return nil
	}
}

// countingHash wraps SHA256File and counts invocations.
type countingHash struct {
	mu sync.Mutex
	n  int
}

func (c *countingHash) fn(path string) (string, error) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return SHA256File(path)
}

func (c *countingHash) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// --- event recording ---

type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Emit(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordSink) countOf(match func(Event) bool) int {
	n := 0
	for _, e := range s.all() {
		if match(e) {
			n++
		}
	}
	return n
}
