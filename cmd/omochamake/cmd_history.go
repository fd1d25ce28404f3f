package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sugi-a/omochamake/internal/history"
	"github.com/sugi-a/omochamake/pkg/engine"
)

var (
	flagHistoryFile  string
	flagHistoryLimit int
	flagHistoryRun   int64
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs, or one run's per-rule outcomes with --run",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&flagHistoryFile, "file", "f", "omochamake.yaml", "build file (locates the history database)")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "number of runs to show")
	historyCmd.Flags().Int64Var(&flagHistoryRun, "run", 0, "show per-rule outcomes for this run id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := filepath.Join(filepath.Dir(flagHistoryFile), engine.MetaDirName, "history.db")
	st, err := history.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	if flagHistoryRun != 0 {
		outcomes, err := st.RuleOutcomes(flagHistoryRun)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			line := fmt.Sprintf("%-12s %s", o.Status, o.Rule)
			if o.Error != "" {
				line += "  (" + o.Error + ")"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}

	runs, err := st.Runs(flagHistoryLimit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "ok"
		if !r.OK {
			status = "failed"
		}
		if r.DryRun {
			status += " (dry)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "#%-5d %s  %s\n", r.ID, r.StartedAt, status)
	}
	return nil
}
