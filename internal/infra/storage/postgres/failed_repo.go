package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/batchwatch/internal/core/domain"
)

// FailedRepo implements storage.FailedBlockRepository using PostgreSQL.
type FailedRepo struct {
	db *DB
}

// NewFailedRepo creates a new PostgreSQL failed block repository.
func NewFailedRepo(db *DB) *FailedRepo {
	return &FailedRepo{db: db}
}

// Add records a failed block; repeated failures of the same block bump the
// retry count instead of inserting a new row.
func (r *FailedRepo) Add(ctx context.Context, fb *domain.FailedBlock) error {
	id := fb.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO failed_blocks (id, block_number, error_msg, retry_count, last_attempt, created_at)
		VALUES ($1, $2, $3, 0, now(), now())
		ON CONFLICT (block_number) DO UPDATE SET
			error_msg    = EXCLUDED.error_msg,
			retry_count  = failed_blocks.retry_count + 1,
			last_attempt = now()
	`
	if _, err := r.db.ExecContext(ctx, query, id, fb.BlockNumber, fb.Error); err != nil {
		return fmt.Errorf("failed to record failed block %d: %w", fb.BlockNumber, err)
	}
	return nil
}

// GetAll retrieves all tracked failed blocks.
func (r *FailedRepo) GetAll(ctx context.Context) ([]*domain.FailedBlock, error) {
	query := `
		SELECT id, block_number, error_msg, retry_count, last_attempt, created_at
		FROM failed_blocks
		ORDER BY block_number ASC
	`

	var rows []struct {
		ID          string    `db:"id"`
		BlockNumber uint64    `db:"block_number"`
		ErrorMsg    string    `db:"error_msg"`
		RetryCount  int       `db:"retry_count"`
		LastAttempt time.Time `db:"last_attempt"`
		CreatedAt   time.Time `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list failed blocks: %w", err)
	}

	out := make([]*domain.FailedBlock, len(rows))
	for i, row := range rows {
		out[i] = &domain.FailedBlock{
			ID:          row.ID,
			BlockNumber: row.BlockNumber,
			Error:       row.ErrorMsg,
			RetryCount:  row.RetryCount,
			LastAttempt: row.LastAttempt,
			CreatedAt:   row.CreatedAt,
		}
	}
	return out, nil
}

// Resolve removes a failed block after a successful rescan.
func (r *FailedRepo) Resolve(ctx context.Context, blockNumber uint64) error {
	query := `DELETE FROM failed_blocks WHERE block_number = $1`
	if _, err := r.db.ExecContext(ctx, query, blockNumber); err != nil {
		return fmt.Errorf("failed to resolve failed block %d: %w", blockNumber, err)
	}
	return nil
}
