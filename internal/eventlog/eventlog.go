// Package eventlog renders engine events through slog. The engine itself
// makes no assumption about presentation; this sink is the human-facing
// rendering used by the CLI.
package eventlog

import (
	"log/slog"

	"github.com/sugi-a/omochamake/internal/logging"
	"github.com/sugi-a/omochamake/pkg/engine"
)

// Sink renders engine events to a slog logger. Safe for concurrent use
// (slog handlers are).
type Sink struct {
	log *slog.Logger
}

// New returns a sink over the given logger. A nil logger uses the default
// "make" component logger.
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = logging.New("make")
	}
	return &Sink{log: logger}
}

// Emit renders one event. Skips of rules that were only ancestor
// dependencies are demoted to debug; direct-target skips stay at info.
func (s *Sink) Emit(ev engine.Event) {
	switch e := ev.(type) {
	case engine.Skip:
		if e.IsDirectTarget {
			s.log.Info("skip", "rule", e.Rule.Name)
		} else {
			s.log.Debug("skip", "rule", e.Rule.Name)
		}
	case engine.Start:
		s.log.Info("make", "rule", e.Rule.Name, "action", e.Rule.Action.Describe())
	case engine.Done:
		s.log.Info("done", "rule", e.Rule.Name)
	case engine.DryRun:
		s.log.Info("make (dry)", "rule", e.Rule.Name, "action", e.Rule.Action.Describe())
	case engine.UpdateInfeasible:
		s.log.Warn("cannot make", "rule", e.Rule.Name, "reason", e.Reason)
	case engine.UpdateCheckError:
		s.log.Error("failed to check if update is necessary", "rule", e.Rule.Name, "error", e.Err)
	case engine.PreProcError:
		s.log.Error("preprocessing failed", "rule", e.Rule.Name, "error", e.Err)
	case engine.ExecError:
		s.log.Error("action failed", "rule", e.Rule.Name, "error", e.Err)
	case engine.PostProcError:
		s.log.Error("post-processing failed; outputs were stamped invalid",
			"rule", e.Rule.Name, "error", e.Err)
	case engine.FatalError:
		s.log.Error("fatal engine error", "error", e.Err)
	case engine.StopOnFail:
		s.log.Warn("execution aborted due to an error")
	default:
		s.log.Warn("unhandled event", "type", ev)
	}
}
