// Package group is the declaration layer on top of the engine: a
// hierarchical tree of named groups whose rules are wired together through
// opaque target handles. Dependencies are derived from the handles a rule
// consumes, never declared by hand, and output paths are checked for
// uniqueness across the whole tree at registration time.
package group

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sugi-a/omochamake/pkg/engine"
)

// Group is a node in the declaration tree. The root group owns the
// path registry shared by all descendants.
type Group struct {
	root   *Group
	name   string
	prefix string

	subs    map[string]*Group
	subSeq  []*Group
	handles map[string]*Handle
	seq     []*Handle

	// root only: output path -> producing target.
	paths map[string]*Target
}

// NewRoot creates a root group. prefix is prepended verbatim to every
// relative output path declared beneath it (e.g. "out/").
func NewRoot(prefix string) *Group {
	g := &Group{
		prefix:  prefix,
		subs:    map[string]*Group{},
		handles: map[string]*Handle{},
		paths:   map[string]*Target{},
	}
	g.root = g
	return g
}

// Sub creates a child group. Its prefix is this group's prefix followed by
// the given one.
func (g *Group) Sub(name, prefix string) (*Group, error) {
	if name == "" {
		return nil, fmt.Errorf("group: sub-group name must not be empty")
	}
	if _, ok := g.subs[name]; ok {
		return nil, fmt.Errorf("%w: group %s", ErrDuplicateName, name)
	}
	if _, ok := g.handles[name]; ok {
		return nil, fmt.Errorf("%w: rule %s", ErrDuplicateName, name)
	}
	sub := &Group{
		root:    g.root,
		name:    joinName(g.name, name),
		prefix:  g.prefix + prefix,
		subs:    map[string]*Group{},
		handles: map[string]*Handle{},
	}
	g.subs[name] = sub
	g.subSeq = append(g.subSeq, sub)
	return sub, nil
}

// Add registers a rule: its output paths (prefixed, relative to the group),
// its nested input declaration, and the action body. It returns a handle
// whose targets other rules may consume as inputs; doing so is what creates
// a dependency edge.
func (g *Group) Add(name string, outputs []string, inputs Ins, fn func(ctx context.Context) error) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("group: rule name must not be empty")
	}
	if _, ok := g.handles[name]; ok {
		return nil, fmt.Errorf("%w: rule %s", ErrDuplicateName, name)
	}
	if _, ok := g.subs[name]; ok {
		return nil, fmt.Errorf("%w: group %s", ErrDuplicateName, name)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("group: rule %s declares no outputs", name)
	}

	outPaths := make([]string, len(outputs))
	for i, p := range outputs {
		if filepath.IsAbs(p) {
			outPaths[i] = filepath.Clean(p)
		} else {
			outPaths[i] = filepath.Clean(g.prefix + p)
		}
		if owner, ok := g.root.paths[outPaths[i]]; ok {
			return nil, fmt.Errorf("%w: %s already produced by rule %s",
				ErrDuplicatePath, outPaths[i], owner.rule.Name)
		}
	}

	ins, deps, err := flattenIns(nil, inputs, false)
	if err != nil {
		return nil, fmt.Errorf("group: rule %s: %w", name, err)
	}

	ruleName := joinName(g.name, name)
	outs := make([]engine.Artifact, len(outPaths))
	args := make([]engine.Arg, 0, len(outPaths)+len(ins))
	for i, p := range outPaths {
		outs[i] = engine.Plain(p)
		args = append(args, engine.Arg{Name: fmt.Sprintf("out[%d]", i), Value: p})
	}
	for _, in := range ins {
		args = append(args, engine.Arg{Name: in.Key.String(), Value: in.Artifact.Path})
	}

	rule, err := engine.NewRule(ruleName, outs, ins, deps, engine.Action{
		Name: ruleName,
		Args: args,
		Fn:   fn,
	})
	if err != nil {
		return nil, err
	}

	h := &Handle{rule: rule, outs: make([]*Target, len(outPaths))}
	for i, p := range outPaths {
		h.outs[i] = &Target{rule: rule, path: p}
		g.root.paths[p] = h.outs[i]
	}
	g.handles[name] = h
	g.seq = append(g.seq, h)
	return h, nil
}

// Owner returns the target producing path, if any rule in the tree does.
func (g *Group) Owner(path string) (*Target, bool) {
	t, ok := g.root.paths[filepath.Clean(path)]
	return t, ok
}

// Rules returns every rule declared at or beneath this group, in
// registration order.
func (g *Group) Rules() []*engine.Rule {
	var out []*engine.Rule
	for _, h := range g.seq {
		out = append(out, h.rule)
	}
	for _, sub := range g.subSeq {
		out = append(out, sub.Rules()...)
	}
	return out
}

// Make brings every rule at or beneath this group up to date.
func (g *Group) Make(ctx context.Context, opts engine.Options) (*engine.Report, error) {
	return engine.Run(ctx, g.Rules(), opts)
}

// Clean removes the outputs and metadata cache records of every rule at or
// beneath this group. Missing files are ignored.
func (g *Group) Clean() error {
	for _, r := range g.Rules() {
		for _, out := range r.Outputs {
			if err := os.Remove(out.Path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("group: clean %s: %w", out.Path, err)
			}
		}
		if err := os.Remove(r.MetadataPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("group: clean %s: %w", r.MetadataPath(), err)
		}
	}
	return nil
}

// Ins is a nested input declaration. Values may be:
//
//   - string: an external file path, tracked by timestamp only
//   - *Target: another rule's output (adds a dependency edge)
//   - Tracked: marks the wrapped value (and everything beneath it) as
//     tracked-content
//   - []any or Ins/map[string]any: nesting; each leaf gets a DeepKey
//     derived from its position
type Ins map[string]any

// Tracked marks an input leaf or subtree as tracked-content.
type Tracked struct {
	Value any
}

// flattenIns walks a nested input declaration, assigning each leaf the
// DeepKey of its position. Map keys are visited in sorted order so the
// resulting input list is deterministic.
func flattenIns(key engine.DeepKey, v any, tracked bool) ([]engine.Input, []*engine.Rule, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil, nil
	case Tracked:
		return flattenIns(key, t.Value, true)
	case string:
		return []engine.Input{{Key: key, Artifact: leafArtifact(t, tracked)}}, nil, nil
	case *Target:
		ins := []engine.Input{{Key: key, Artifact: leafArtifact(t.path, tracked)}}
		return ins, []*engine.Rule{t.rule}, nil
	case []any:
		var ins []engine.Input
		var deps []*engine.Rule
		for i, elem := range t {
			ci, cd, err := flattenIns(key.Append(engine.I(i)), elem, tracked)
			if err != nil {
				return nil, nil, err
			}
			ins = append(ins, ci...)
			deps = mergeDeps(deps, cd)
		}
		return ins, deps, nil
	case Ins:
		return flattenMap(key, t, tracked)
	case map[string]any:
		return flattenMap(key, t, tracked)
	default:
		return nil, nil, fmt.Errorf("input at %s has unsupported type %T", key, v)
	}
}

func flattenMap(key engine.DeepKey, m map[string]any, tracked bool) ([]engine.Input, []*engine.Rule, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var ins []engine.Input
	var deps []*engine.Rule
	for _, k := range keys {
		ci, cd, err := flattenIns(key.Append(engine.S(k)), m[k], tracked)
		if err != nil {
			return nil, nil, err
		}
		ins = append(ins, ci...)
		deps = mergeDeps(deps, cd)
	}
	return ins, deps, nil
}

func leafArtifact(path string, tracked bool) engine.Artifact {
	path = filepath.Clean(path)
	if tracked {
		return engine.Tracked(path)
	}
	return engine.Plain(path)
}

func mergeDeps(dst, src []*engine.Rule) []*engine.Rule {
	for _, r := range src {
		seen := false
		for _, d := range dst {
			if d == r {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, r)
		}
	}
	return dst
}

func joinName(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
