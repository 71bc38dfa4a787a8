package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/triagehq/triage-cli/internal/jobs"
	"github.com/triagehq/triage-cli/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a snapshot of tickets, runs, and jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initReadOnlyEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// The job database only exists once serve has run; a snapshot
		// without job counts is still useful.
		var jobCounter monitoring.JobCounter
		if _, statErr := os.Stat(cfg.Jobs.Path); statErr == nil {
			jobStore, err := jobs.Open(cfg.Jobs.Path)
			if err != nil {
				return err
			}
			defer jobStore.Close()
			if err := jobStore.Migrate(ctx); err != nil {
				return err
			}
			jobCounter = jobStore
		}

		snap, err := monitoring.NewCollector(env.Store, jobCounter).Collect(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
