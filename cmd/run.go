package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one triage pass over the feedback files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		var onProgress service.ProgressFunc = func(progress int, message string) {
			zap.L().Info("triage progress",
				zap.Int("progress", progress),
				zap.String("message", message),
			)
		}

		summary, err := env.Service.Run(ctx, onProgress)
		if err != nil {
			return eris.Wrap(err, "triage run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
