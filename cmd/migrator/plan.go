package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	migrationapp "github.com/erp/weclapp-migration/internal/application/migration"
	"github.com/erp/weclapp-migration/internal/application/migration/definitions"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the kinds in migration order as YAML",
	Long: `plan lists every registered kind in the order "migrate" visits them, with its
source and destination types and the kinds it depends on. It needs no database.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := definitions.NewRegistry()
		if err != nil {
			return err
		}
		settings, err := cfg.Settings()
		if err != nil {
			return err
		}
		engine := migrationapp.NewEngine(nil, nil, nil, registry, settings)
		steps, err := migrationapp.NewOrchestrator(engine, nil, nil, nil, log).Plan()
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(map[string]any{"plan": steps})
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
