package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sugi-a/omochamake/internal/config"
	"github.com/sugi-a/omochamake/internal/eventlog"
	"github.com/sugi-a/omochamake/internal/history"
	"github.com/sugi-a/omochamake/internal/logging"
	"github.com/sugi-a/omochamake/internal/watch"
	"github.com/sugi-a/omochamake/pkg/engine"
)

var (
	flagFile       string
	flagDryRun     bool
	flagStopOnFail bool
	flagJobs       int
	flagWatch      bool
	flagDebounce   time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [target...]",
	Short: "Bring targets (default: all rules) up to date",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&flagFile, "file", "f", "omochamake.yaml", "build file")
	runCmd.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "report what would run without running it")
	runCmd.Flags().BoolVar(&flagStopOnFail, "stop-on-fail", false, "halt dispatch of new rules after the first failure")
	runCmd.Flags().IntVarP(&flagJobs, "jobs", "j", 1, "number of rules to run concurrently")
	runCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "re-run when input files change")
	runCmd.Flags().DurationVar(&flagDebounce, "debounce", 200*time.Millisecond, "quiet period before a watched change triggers a re-run")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := logging.New("run")

	f, err := config.LoadFromPath(flagFile)
	if err != nil {
		return err
	}
	root, byName, err := config.Build(f)
	if err != nil {
		return err
	}

	var targets []*engine.Rule
	if len(args) == 0 {
		targets = root.Rules()
	} else {
		for _, name := range args {
			h, ok := byName[name]
			if !ok {
				return fmt.Errorf("unknown rule %s", name)
			}
			targets = append(targets, h.Rule())
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := engine.Options{
		DryRun:      flagDryRun,
		StopOnFail:  flagStopOnFail,
		Concurrency: flagJobs,
		Events:      eventlog.New(logging.New("make")),
	}

	st := openHistory(flagFile)
	if st != nil {
		defer st.Close()
	}

	doRun := func() (bool, error) {
		started := time.Now()
		rep, err := engine.Run(ctx, targets, opts)
		if err != nil {
			return false, err
		}
		if st != nil && !flagDryRun {
			if _, err := st.RecordRun(rep, flagDryRun, started, time.Now()); err != nil {
				logger.Warn("record run history failed", "error", err)
			}
		}
		return rep.OK(), nil
	}

	ok, err := doRun()
	if err != nil {
		return err
	}

	if flagWatch {
		logger.Info("watching for changes", "inputs", len(f.ExternalInputs()))
		w := watch.New(f.ExternalInputs(), flagDebounce)
		werr := w.Run(ctx, func() {
			if _, err := doRun(); err != nil {
				logger.Error("rebuild failed", "error", err)
			}
		})
		if werr != nil && ctx.Err() == nil {
			return werr
		}
		return nil
	}

	if !ok {
		return fmt.Errorf("build finished with failures")
	}
	return nil
}

// openHistory opens the run-history store next to the build file. History
// is best-effort: failures are logged, never fatal.
func openHistory(buildFile string) *history.Store {
	path := filepath.Join(filepath.Dir(buildFile), engine.MetaDirName, "history.db")
	st, err := history.Open(path)
	if err != nil {
		logging.New("run").Warn("history store unavailable", "error", err)
		return nil
	}
	return st
}
