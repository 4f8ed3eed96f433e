package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/infrastructure/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the postgres schema of the destination store",
	Long: `schema applies or rolls back the versioned SQL schema with golang-migrate.
Sqlite stores create their tables automatically and do not need it.`,
}

var schemaDir string

var schemaCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Write an empty up/down migration pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := schema.Scaffold(schemaDir, args[0])
		if err != nil {
			return err
		}
		log.Info("Created schema migration",
			zap.Uint("version", f.Version),
			zap.String("up", f.UpPath),
			zap.String("down", f.DownPath),
		)
		return nil
	},
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the migrations compiled into this binary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := schema.Embedded()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%06d %s\n", e.Version, e.Name); err != nil {
				return err
			}
		}
		return nil
	},
}

var schemaUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *schema.Migrator) error { return m.Up() })
	},
}

var schemaDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *schema.Migrator) error { return m.Down() })
	},
}

var schemaStepsCmd = &cobra.Command{
	Use:   "steps <n>",
	Short: "Apply n migrations, or roll back when n is negative",
	Example: `  migrator schema steps 1
  migrator schema steps -- -1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[0], err)
		}
		return withMigrator(func(m *schema.Migrator) error { return m.Steps(n) })
	},
}

var schemaForceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the schema version without running migrations",
	Long:  `force clears the dirty flag after a failed migration was repaired by hand.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withMigrator(func(m *schema.Migrator) error { return m.Force(v) })
	},
}

var schemaVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *schema.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %t\n", version, dirty)
			return err
		})
	},
}

func withMigrator(fn func(m *schema.Migrator) error) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("schema commands need the postgres driver, not %q", cfg.Database.Driver)
	}
	m, err := schema.Open(cfg.Database.DSN(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Error closing schema migrator", zap.Error(err))
		}
	}()
	return fn(m)
}

func init() {
	schemaCreateCmd.Flags().StringVar(&schemaDir, "dir", schema.DefaultDir, "Directory holding the migration files")
	schemaCmd.AddCommand(schemaCreateCmd, schemaListCmd, schemaUpCmd, schemaDownCmd, schemaStepsCmd, schemaForceCmd, schemaVersionCmd)
	rootCmd.AddCommand(schemaCmd)
}
