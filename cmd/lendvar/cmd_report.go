package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/defirisk/lendvar/internal/persistence/postgres"
	"github.com/defirisk/lendvar/internal/report"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Print a stored simulation run",
		Long: `Prints the loss distribution and VaR statistics of a stored run.
Without a run ID the most recent run is printed; --list shows the run
history instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReport,
	}
	cmd.Flags().Bool("list", false, "List stored runs instead of printing one")
	cmd.Flags().Int("limit", 20, "Maximum runs to list")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	runs := postgres.NewRunsRepo(db, cfg.Database.QueryTimeout)

	if list, _ := cmd.Flags().GetBool("list"); list {
		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := runs.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		return report.WriteRunList(os.Stdout, recs)
	}

	var id uuid.UUID
	if len(args) == 1 {
		id, err = uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}
	} else {
		recs, err := runs.ListRuns(ctx, 1)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("no stored runs; run `lendvar simulate` first")
		}
		id = recs[0].RunID
	}

	rec, err := runs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	return report.WriteRun(os.Stdout, rec)
}
