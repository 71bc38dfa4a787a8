package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/triagehq/triage-cli/internal/rules"
)

var rulesPatchFile string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage priority assignment rules",
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective priority rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := rules.NewManager(cfg.Rules.Path)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(mgr.Get())
	},
}

var rulesSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Apply a partial rules update from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(rulesPatchFile)
		if err != nil {
			return eris.Wrap(err, "read patch file")
		}

		var patches map[string]rules.CategoryRulePatch
		if err := yaml.Unmarshal(raw, &patches); err != nil {
			return eris.Wrap(err, "parse patch file")
		}

		mgr := rules.NewManager(cfg.Rules.Path)
		if err := mgr.Set(patches); err != nil {
			return err
		}

		zap.L().Info("priority rules updated",
			zap.Int("categories", len(patches)),
			zap.String("path", cfg.Rules.Path),
		)
		return nil
	},
}

func init() {
	rulesSetCmd.Flags().StringVar(&rulesPatchFile, "file", "", "YAML file with category rule patches (required)")
	_ = rulesSetCmd.MarkFlagRequired("file")

	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesSetCmd)
	rootCmd.AddCommand(rulesCmd)
}
