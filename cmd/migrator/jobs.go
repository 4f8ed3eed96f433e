package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/erp/weclapp-migration/internal/infrastructure/scheduler"
)

var whereFlags []string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Refetch every configured doctype from WeClapp",
	Long: `cache deletes the source cache and the migration log, then downloads every
configured doctype together with its documents and archived e-mails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(scheduler.NewJob(scheduler.JobTypeCache, "", nil))
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [kind]",
	Short: "Migrate cached entities into the destination store",
	Long: `migrate migrates every kind in dependency order, or only the given kind.
With --where only entities whose fields equal the given values are migrated.`,
	Example: `  migrator migrate
  migrator migrate customer --where customerNumber=C-1001`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := ""
		if len(args) == 1 {
			kind = args[0]
		}
		where, err := parseWhere(whereFlags)
		if err != nil {
			return err
		}
		return runJob(scheduler.NewJob(scheduler.JobTypeMigrate, kind, where))
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <kind>",
	Short: "Delete every migrated document of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(scheduler.NewJob(scheduler.JobTypeClear, args[0], nil))
	},
}

// runJob runs job in the foreground. SIGINT stops it between items.
func runJob(job *scheduler.Job) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if job.Kind != "" {
		if err := a.orchestrator.CheckKind(job.Kind); err != nil {
			return fmt.Errorf("%s: %w", job.Kind, err)
		}
	}
	return a.run(ctx, job)
}

// parseWhere turns field=value pairs into a filter
func parseWhere(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	where := make(map[string]string, len(pairs))
	for _, p := range pairs {
		field, value, ok := strings.Cut(p, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --where %q, expected field=value", p)
		}
		where[field] = value
	}
	return where, nil
}

func init() {
	migrateCmd.Flags().StringArrayVar(&whereFlags, "where", nil, "Only migrate entities with field=value (repeatable)")
	rootCmd.AddCommand(cacheCmd, migrateCmd, clearCmd)
}
