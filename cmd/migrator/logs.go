package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/weclapp-migration/internal/domain/migration"
	"github.com/erp/weclapp-migration/internal/infrastructure/persistence"
)

var (
	logStatus string
	logLimit  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the migration log, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status := migration.OutcomeStatus(logStatus)
		if status != "" && status != migration.OutcomeSuccess && status != migration.OutcomeError {
			return fmt.Errorf("invalid --status %q, expected Success or Error", logStatus)
		}

		db, err := persistence.NewDatabase(&cfg.Database, log)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		journal := persistence.NewLogRepository(persistence.NewUnitOfWork(db.DB))
		outcomes, err := journal.List(context.Background(), migration.OutcomeFilter{Status: status, Limit: logLimit})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSTATUS\tMESSAGE\tDETAIL")
		for _, o := range outcomes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Timestamp.Format(time.DateTime), o.Status, o.Message, o.Detail)
		}
		return w.Flush()
	},
}

func init() {
	logsCmd.Flags().StringVar(&logStatus, "status", "", "Only show Success or Error entries")
	logsCmd.Flags().IntVar(&logLimit, "limit", 50, "Maximum number of entries")
	rootCmd.AddCommand(logsCmd)
}
