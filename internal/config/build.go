package config

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sugi-a/omochamake/pkg/group"
)

// Build turns a parsed build file into a rule graph. Rules are registered
// in declaration order; an input naming another rule's output resolves to
// that rule's target handle, which is what creates the dependency edge, so
// producers must be declared before their consumers.
//
// The returned map indexes rule handles by their declared name, for target
// selection on the command line.
func Build(f *File) (*group.Group, map[string]*group.Handle, error) {
	root := group.NewRoot(f.Prefix)
	byName := make(map[string]*group.Handle, len(f.Rules))

	produced := make(map[string]string) // output path -> producing rule name
	for _, def := range f.Rules {
		for _, out := range def.Outputs {
			produced[f.outputPath(out)] = def.Name
		}
	}

	for _, def := range f.Rules {
		ins := group.Ins{}
		for i, in := range def.Inputs {
			key := in.Key
			if key == "" {
				key = fmt.Sprintf("in%d", i)
			}
			if _, dup := ins[key]; dup {
				return nil, nil, fmt.Errorf("config: rule %s: duplicate input key %s", def.Name, key)
			}

			var leaf any
			if t, ok := root.Owner(in.Path); ok {
				leaf = t
			} else if t, ok := root.Owner(f.outputPath(in.Path)); ok {
				leaf = t
			} else {
				owner, fwd := produced[filepath.Clean(in.Path)]
				if !fwd {
					owner, fwd = produced[f.outputPath(in.Path)]
				}
				if fwd {
					return nil, nil, fmt.Errorf(
						"config: rule %s consumes %s but its producer %s is declared later",
						def.Name, in.Path, owner)
				}
				leaf = in.Path
			}
			if in.Tracked {
				leaf = group.Tracked{Value: leaf}
			}
			ins[key] = leaf
		}

		h, err := root.Add(def.Name, def.Outputs, ins, shellAction(def.Command))
		if err != nil {
			return nil, nil, err
		}
		byName[def.Name] = h
	}
	return root, byName, nil
}

// shellAction wraps a shell command as a rule action. The command inherits
// the process's stdout/stderr and is killed when the context is canceled.
func shellAction(command string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}
}
