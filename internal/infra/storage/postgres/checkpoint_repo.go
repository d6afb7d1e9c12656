package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/batchwatch/internal/core/domain"
)

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
type CheckpointRepo struct {
	db *DB
}

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Get retrieves the checkpoint; the zero value means nothing scanned yet.
func (r *CheckpointRepo) Get(ctx context.Context) (*domain.Checkpoint, error) {
	query := `SELECT last_scanned_block, updated_at FROM checkpoints WHERE id = 1`

	var row struct {
		LastScannedBlock uint64    `db:"last_scanned_block"`
		UpdatedAt        time.Time `db:"updated_at"`
	}
	err := r.db.GetContext(ctx, &row, query)
	if err == sql.ErrNoRows {
		return &domain.Checkpoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return &domain.Checkpoint{
		LastScannedBlock: row.LastScannedBlock,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

// Advance moves the checkpoint forward. GREATEST keeps the update monotonic
// so a stale writer can never regress scan progress.
func (r *CheckpointRepo) Advance(ctx context.Context, blockNumber uint64) error {
	query := `
		INSERT INTO checkpoints (id, last_scanned_block, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			last_scanned_block = GREATEST(checkpoints.last_scanned_block, EXCLUDED.last_scanned_block),
			updated_at = CASE
				WHEN EXCLUDED.last_scanned_block > checkpoints.last_scanned_block THEN EXCLUDED.updated_at
				ELSE checkpoints.updated_at
			END
	`
	if _, err := r.db.ExecContext(ctx, query, blockNumber); err != nil {
		return fmt.Errorf("failed to advance checkpoint to %d: %w", blockNumber, err)
	}
	return nil
}
