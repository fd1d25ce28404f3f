package main

import (
	"github.com/spf13/cobra"

	"github.com/sugi-a/omochamake/internal/config"
	"github.com/sugi-a/omochamake/internal/logging"
)

var flagCleanFile string

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove all rule outputs and metadata cache records",
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().StringVarP(&flagCleanFile, "file", "f", "omochamake.yaml", "build file")
}

func runClean(cmd *cobra.Command, args []string) error {
	f, err := config.LoadFromPath(flagCleanFile)
	if err != nil {
		return err
	}
	root, _, err := config.Build(f)
	if err != nil {
		return err
	}
	if err := root.Clean(); err != nil {
		return err
	}
	logging.New("clean").Info("cleaned", "rules", len(root.Rules()))
	return nil
}
