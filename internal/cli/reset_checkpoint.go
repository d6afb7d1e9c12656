package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/batchwatch/internal/core/config"
	"github.com/vietddude/batchwatch/internal/infra/storage/postgres"
)

var resetCheckpointCmd = &cobra.Command{
	Use:   "reset-checkpoint [block_number]",
	Short: "Force the scan checkpoint to a given block number",
	Args:  cobra.ExactArgs(1),
	Run:   runResetCheckpoint,
}

func init() {
	rootCmd.AddCommand(resetCheckpointCmd)
}

func runResetCheckpoint(cmd *cobra.Command, args []string) {
	block, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block number: %v\n", err)
		os.Exit(1)
	}

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

	// Direct SQL: the repository only ever moves the checkpoint forward,
	// and a reset must be able to move it back.
	query := `INSERT INTO checkpoints (id, last_scanned_block, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET last_scanned_block = EXCLUDED.last_scanned_block, updated_at = EXCLUDED.updated_at`
	if _, err := db.ExecContext(ctx, query, block); err != nil {
		slog.Error("Failed to reset checkpoint", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Checkpoint reset to block %d\n", block)
}
