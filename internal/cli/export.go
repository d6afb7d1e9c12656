package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/batchwatch/internal/core/config"
	"github.com/vietddude/batchwatch/internal/infra/storage/postgres"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export [from_block] [to_block]",
	Short: "Export decoded batches in a block range as JSON lines",
	Args:  cobra.ExactArgs(2),
	Run:   runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	from, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid from block: %v\n", err)
		os.Exit(1)
	}
	to, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Invalid to block: %v\n", err)
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

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			slog.Error("Failed to create output file", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = f.Close()
		}()
		out = f
	}

	batches, errs := postgres.NewBatchRepo(db).Export(ctx, from, to)
	enc := json.NewEncoder(out)
	count := 0

	for batch := range batches {
		if err := enc.Encode(batch); err != nil {
			slog.Error("Failed to write batch", "error", err)
			os.Exit(1)
		}
		count++
	}
	if err := <-errs; err != nil {
		slog.Error("Export failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Export complete", "batches", count, "from", from, "to", to)
}
