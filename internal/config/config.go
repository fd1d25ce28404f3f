// Package config loads declarative build files and turns them into a rule
// graph. A build file lists rules whose actions are shell commands; inputs
// naming another rule's output become dependency edges.
package config

import (
	"fmt"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"
)

// File is a parsed build file.
type File struct {
	// Prefix is prepended verbatim to every relative output path.
	Prefix string `yaml:"prefix" json:"prefix"`
	Rules  []RuleDef `yaml:"rules" json:"rules"`
}

// RuleDef declares one rule: named outputs, inputs, and a shell command.
type RuleDef struct {
	Name    string     `yaml:"name" json:"name"`
	Outputs []string   `yaml:"outputs" json:"outputs"`
	Inputs  []InputDef `yaml:"inputs" json:"inputs"`
	Command string     `yaml:"command" json:"command"`
}

// InputDef declares one input. In YAML it may be a bare string (a plain,
// timestamp-tracked path) or a mapping with path/key/tracked fields.
type InputDef struct {
	Path    string `yaml:"path" json:"path"`
	Key     string `yaml:"key" json:"key"`
	Tracked bool   `yaml:"tracked" json:"tracked"`
}

// UnmarshalYAML accepts both the scalar shorthand and the full mapping form.
func (d *InputDef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&d.Path)
	}
	type raw InputDef
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	*d = InputDef(r)
	return nil
}

// Validate checks structural invariants before the graph is built.
func (f *File) Validate() error {
	if len(f.Rules) == 0 {
		return fmt.Errorf("config: build file declares no rules")
	}
	seen := make(map[string]bool, len(f.Rules))
	for _, r := range f.Rules {
		if r.Name == "" {
			return fmt.Errorf("config: rule with empty name")
		}
		if seen[r.Name] {
			return fmt.Errorf("config: duplicate rule name %s", r.Name)
		}
		seen[r.Name] = true
		if len(r.Outputs) == 0 {
			return fmt.Errorf("config: rule %s declares no outputs", r.Name)
		}
		if r.Command == "" {
			return fmt.Errorf("config: rule %s has no command", r.Name)
		}
		for _, in := range r.Inputs {
			if in.Path == "" {
				return fmt.Errorf("config: rule %s has an input without a path", r.Name)
			}
		}
	}
	return nil
}

// ExternalInputs returns the input paths not produced by any rule in the
// file, i.e. the leaves a watch mode should observe. Paths are cleaned and
// deduplicated, declaration order preserved.
func (f *File) ExternalInputs() []string {
	produced := make(map[string]bool)
	for _, r := range f.Rules {
		for _, out := range r.Outputs {
			produced[f.outputPath(out)] = true
		}
	}

	var out []string
	seen := make(map[string]bool)
	for _, r := range f.Rules {
		for _, in := range r.Inputs {
			p := filepath.Clean(in.Path)
			if produced[p] || produced[f.outputPath(in.Path)] || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// outputPath applies the file's prefix the way the group layer does.
func (f *File) outputPath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(f.Prefix + p)
}
