package engine

import (
	"fmt"
	"sync"
)

// RunContext is the per-invocation state shared by staleness evaluations:
// the dry-run and stop-on-fail flags plus the set of rules already judged
// updated in this run. The updated set is mutated by multiple workers and
// is guarded accordingly.
type RunContext struct {
	DryRun     bool
	StopOnFail bool

	mu      sync.Mutex
	updated map[*Rule]struct{}
}

// NewRunContext returns a context for one engine invocation.
func NewRunContext(dryRun, stopOnFail bool) *RunContext {
	return &RunContext{
		DryRun:     dryRun,
		StopOnFail: stopOnFail,
		updated:    make(map[*Rule]struct{}),
	}
}

// MarkUpdated records that r ran (or, under dry-run, would run).
func (c *RunContext) MarkUpdated(r *Rule) {
	c.mu.Lock()
	c.updated[r] = struct{}{}
	c.mu.Unlock()
}

// Updated reports whether r was marked updated in this run.
func (c *RunContext) Updated(r *Rule) bool {
	c.mu.Lock()
	_, ok := c.updated[r]
	c.mu.Unlock()
	return ok
}

// ShouldUpdate decides whether r must re-run.
//
// Timestamps are authoritative for plain inputs. For tracked-content inputs
// whose mtime is newer than the oldest output, the metadata cache is
// consulted: an equal cached mtime skips hashing entirely, otherwise the
// hash is recomputed and compared. Hashing only ever happens when the
// timestamps indicate a possible change.
//
// Under dry-run, missing and sentinel-stamped inputs are downgraded to a
// stale verdict: a prior, not-yet-simulated step would have produced them.
// Outside dry-run they are reported as ErrMissingInput / ErrInvalidInput.
func ShouldUpdate(r *Rule, rc *RunContext) (bool, error) {
	for _, in := range r.Inputs {
		p := in.Artifact.Path
		if !exists(p) {
			if rc.DryRun {
				return true, nil
			}
			return false, fmt.Errorf("%w: %s", ErrMissingInput, p)
		}
		m, err := mtimeOf(p)
		if err != nil {
			return false, fmt.Errorf("stat input %s: %w", p, err)
		}
		if m == 0 {
			if rc.DryRun {
				return true, nil
			}
			return false, fmt.Errorf("%w: %s", ErrInvalidInput, p)
		}
	}

	// Dry-run never touches the filesystem to learn a dependency's
	// hypothetical new timestamp; propagate staleness through the run set.
	if rc.DryRun {
		for _, dep := range r.Deps {
			if rc.Updated(dep) {
				return true, nil
			}
		}
	}

	oldestOut := 0.0
	for i, out := range r.Outputs {
		if !exists(out.Path) {
			return true, nil
		}
		m, err := mtimeOf(out.Path)
		if err != nil {
			return false, fmt.Errorf("stat output %s: %w", out.Path, err)
		}
		if i == 0 || m < oldestOut {
			oldestOut = m
		}
	}
	if oldestOut <= 0 {
		// Sentinel: a prior failed run stamped the outputs.
		return true, nil
	}

	// Inputs newer than the oldest output: plain ones decide immediately,
	// tracked ones are collected for the hash-cache check.
	var newer []Input
	for _, in := range r.Inputs {
		m, err := mtimeOf(in.Artifact.Path)
		if err != nil {
			return false, fmt.Errorf("stat input %s: %w", in.Artifact.Path, err)
		}
		if m > oldestOut {
			if !in.Artifact.IsTracked() {
				return true, nil
			}
			newer = append(newer, in)
		}
	}
	if len(newer) == 0 {
		return false, nil
	}

	cache, err := loadCache(r.MetadataPath())
	if err != nil {
		return false, err
	}
	for _, in := range newer {
		cached, ok := cache[in.Key.canon()]
		if !ok {
			return true, nil
		}
		m, err := mtimeOf(in.Artifact.Path)
		if err != nil {
			return false, fmt.Errorf("stat input %s: %w", in.Artifact.Path, err)
		}
		if m == cached.MTime {
			// Equal timestamps: cheap skip, content taken as unchanged.
			continue
		}
		h, err := in.Artifact.Hash(in.Artifact.Path)
		if err != nil {
			return false, fmt.Errorf("hash input %s: %w", in.Artifact.Path, err)
		}
		if h != cached.Hash {
			return true, nil
		}
	}
	return false, nil
}
