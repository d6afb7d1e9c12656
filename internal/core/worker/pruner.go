package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/batchwatch/internal/infra/storage"
)

// Pruner deletes decoded batch records past the retention period. Pending
// and failed records are never touched.
type Pruner struct {
	retention time.Duration
	batches   storage.BatchRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, batches storage.BatchRepository) *Pruner {
	return &Pruner{
		retention: retention,
		batches:   batches,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	pruned, err := p.batches.PruneDecoded(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to prune decoded records", "error", err)
		return
	}
	if pruned > 0 {
		slog.Info("Pruned decoded records", "count", pruned, "cutoff", cutoff)
	}
}
