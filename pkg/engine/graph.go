package engine

import (
	"fmt"
)

// closure returns the transitive dependency closure of targets in a stable
// order: dependencies before dependents, targets' own order preserved where
// the partial order allows.
func closure(targets []*Rule) ([]*Rule, error) {
	var out []*Rule
	seen := make(map[*Rule]int) // 0 unseen, 1 visiting, 2 done

	var visit func(r *Rule, path []string) error
	visit = func(r *Rule, path []string) error {
		if r == nil {
			return fmt.Errorf("engine: nil rule in graph (path %v)", path)
		}
		switch seen[r] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("%w: %s -> %s", ErrCycle, path[len(path)-1], r.Name)
		}
		if len(r.Outputs) == 0 {
			return fmt.Errorf("engine: rule %s declares no outputs", r.Name)
		}
		seen[r] = 1
		for _, dep := range r.Deps {
			if err := visit(dep, append(path, r.Name)); err != nil {
				return err
			}
		}
		seen[r] = 2
		out = append(out, r)
		return nil
	}

	for _, t := range targets {
		if err := visit(t, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}
