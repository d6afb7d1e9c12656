package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/batchwatch/internal/core/config"
	"github.com/vietddude/batchwatch/internal/core/domain"
	"github.com/vietddude/batchwatch/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the scan checkpoint and batch record counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	cp, err := postgres.NewCheckpointRepo(db).Get(ctx)
	if err != nil {
		slog.Error("Failed to read checkpoint", "error", err)
		os.Exit(1)
	}

	counts, err := postgres.NewBatchRepo(db).CountByState(ctx)
	if err != nil {
		slog.Error("Failed to count batch records", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHECKPOINT\tPENDING\tDECODED\tFAILED")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\n",
		cp.LastScannedBlock,
		counts[domain.RecordStatePending],
		counts[domain.RecordStateDecoded],
		counts[domain.RecordStateFailed],
	)
	_ = w.Flush()
}
