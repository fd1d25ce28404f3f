package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Arg describes one bound action argument for observability. Actions declare
// their arguments statically instead of being reflected over at runtime.
type Arg struct {
	Name  string
	Value string
}

// Action is the opaque body of a rule. Fn is invoked when the rule runs; any
// returned error (or recovered panic) is classified as an execution failure.
// A normal return is success regardless of what the action wrote.
type Action struct {
	Name string
	Args []Arg
	Fn   func(ctx context.Context) error
}

// Describe renders the invocation as `name(arg=value, ...)` for log output.
func (a Action) Describe() string {
	var b strings.Builder
	if a.Name != "" {
		b.WriteString(a.Name)
	} else {
		b.WriteString("<action>")
	}
	b.WriteByte('(')
	for i, arg := range a.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.Name)
		b.WriteByte('=')
		b.WriteString(arg.Value)
	}
	b.WriteByte(')')
	return b.String()
}

// Input pairs a deep key with the artifact it addresses.
type Input struct {
	Key      DeepKey
	Artifact Artifact
}

// Rule is a named unit of work: output artifacts, keyed input artifacts,
// dependency rules, and an action. Rules form a DAG; an edge exists from A
// to B when B consumes an artifact produced by A.
type Rule struct {
	Name    string
	Outputs []Artifact
	Inputs  []Input
	Deps    []*Rule
	Action  Action
}

// NewRule validates and constructs a rule. A rule with no outputs can never
// be judged stale, so an empty output set is rejected here.
func NewRule(name string, outputs []Artifact, inputs []Input, deps []*Rule, action Action) (*Rule, error) {
	if name == "" {
		return nil, fmt.Errorf("engine: rule name must not be empty")
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("engine: rule %s declares no outputs", name)
	}
	if action.Fn == nil {
		return nil, fmt.Errorf("engine: rule %s has no action", name)
	}
	return &Rule{
		Name:    name,
		Outputs: outputs,
		Inputs:  inputs,
		Deps:    deps,
		Action:  action,
	}, nil
}

// trackedInputs returns the inputs carrying a content-hash function.
func (r *Rule) trackedInputs() []Input {
	var out []Input
	for _, in := range r.Inputs {
		if in.Artifact.IsTracked() {
			out = append(out, in)
		}
	}
	return out
}

// MetadataPath is the location of the rule's metadata cache record: a file
// named after the primary output, inside the reserved directory next to it.
func (r *Rule) MetadataPath() string {
	primary := r.Outputs[0].Path
	return filepath.Join(filepath.Dir(primary), MetaDirName, filepath.Base(primary))
}
