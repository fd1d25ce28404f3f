package group

import (
	"errors"

	"github.com/sugi-a/omochamake/pkg/engine"
)

var (
	// ErrDuplicatePath is returned when two rules declare the same output path.
	ErrDuplicatePath = errors.New("group: output path already registered")

	// ErrDuplicateName is returned when a name collides within a group.
	ErrDuplicateName = errors.New("group: name already exists")
)

// Handle is the opaque reference returned by Add. It exposes the rule's
// output targets for wiring into other rules' inputs.
type Handle struct {
	rule *engine.Rule
	outs []*Target
}

// Rule returns the underlying engine rule.
func (h *Handle) Rule() *engine.Rule { return h.rule }

// Path returns the primary (first) output path.
func (h *Handle) Path() string { return h.outs[0].path }

// Out returns the i-th output target.
func (h *Handle) Out(i int) *Target { return h.outs[i] }

// Target is one output file of a rule, used as an input elsewhere.
type Target struct {
	rule *engine.Rule
	path string
}

// Path returns the target's file path.
func (t *Target) Path() string { return t.path }

// Rule returns the producing rule.
func (t *Target) Rule() *engine.Rule { return t.rule }
