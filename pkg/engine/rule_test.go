package engine

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewRule_Validation(t *testing.T) {
	outs := []Artifact{Plain("out.txt")}
	fn := func(ctx context.Context) error { return nil }

	if _, err := NewRule("", outs, nil, nil, Action{Fn: fn}); err == nil {
		t.Error("empty name accepted")
	}
	if _, err := NewRule("r", nil, nil, nil, Action{Fn: fn}); err == nil {
		t.Error("empty output set accepted")
	}
	if _, err := NewRule("r", outs, nil, nil, Action{}); err == nil {
		t.Error("nil action accepted")
	}
	if _, err := NewRule("r", outs, nil, nil, Action{Fn: fn}); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}
}

func TestRule_MetadataPath(t *testing.T) {
	r := mustRule(t, "r", []Artifact{
		Plain(filepath.Join("build", "a.txt")),
		Plain(filepath.Join("build", "b.txt")),
	}, nil, nil, nil)

	// Keyed off the primary output only.
	want := filepath.Join("build", MetaDirName, "a.txt")
	if got := r.MetadataPath(); got != want {
		t.Errorf("MetadataPath() = %q, want %q", got, want)
	}
}

func TestAction_Describe(t *testing.T) {
	a := Action{
		Name: "render",
		Args: []Arg{
			{Name: "out[0]", Value: "report.html"},
			{Name: ".data", Value: "raw.json"},
		},
	}
	if got := a.Describe(); got != "render(out[0]=report.html, .data=raw.json)" {
		t.Errorf("Describe() = %q", got)
	}
	if got := (Action{}).Describe(); got != "<action>()" {
		t.Errorf("Describe() = %q", got)
	}
}

func TestArtifact_Kinds(t *testing.T) {
	if Plain("a").IsTracked() {
		t.Error("plain artifact reports tracked")
	}
	if !Tracked("a").IsTracked() {
		t.Error("tracked artifact reports plain")
	}
}
