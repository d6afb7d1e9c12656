package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/batchwatch/internal/core/domain"
)

var (
	// ErrRecordNotFound is returned when a batch record doesn't exist.
	ErrRecordNotFound = errors.New("batch record not found")
)

// BatchRepository handles batch record storage operations.
type BatchRepository interface {
	// Upsert stores a raw batch record, keyed by tx hash. Re-ingesting a
	// stored transaction is a no-op; the one exception is a record whose
	// blob set was previously partial, which may have its blobs completed
	// while it is still pending.
	Upsert(ctx context.Context, rec *domain.RawBatchRecord) error

	// Get retrieves a record by tx hash.
	Get(ctx context.Context, txHash string) (*domain.RawBatchRecord, error)

	// Pending retrieves all pending records ordered by block number
	// ascending, then tx hash.
	Pending(ctx context.Context) ([]*domain.RawBatchRecord, error)

	// MarkDecoded attaches the decoded output and flips the record to
	// decoded. The update is atomic per record.
	MarkDecoded(ctx context.Context, txHash string, decoded *domain.DecodedBatch) error

	// MarkFailed flips the record to failed with a reason.
	MarkFailed(ctx context.Context, txHash string, reason string) error

	// CountByState returns record counts keyed by state.
	CountByState(ctx context.Context) (map[domain.RecordState]int, error)

	// PruneDecoded deletes decoded records received before the cutoff and
	// returns how many were removed. Pending and failed records are never
	// pruned.
	PruneDecoded(ctx context.Context, before time.Time) (int64, error)

	// Export streams decoded batches for blocks in [from, to], in block
	// number order (ties broken by tx hash). The stream is finite and not
	// restartable mid-way; callers re-invoke with a narrower range to
	// resume. Both channels close when the stream ends.
	Export(ctx context.Context, from, to uint64) (<-chan *domain.DecodedBatch, <-chan error)
}

// CheckpointRepository handles the scan checkpoint.
type CheckpointRepository interface {
	// Get retrieves the checkpoint. A zero-value checkpoint is returned
	// when none has been persisted yet.
	Get(ctx context.Context) (*domain.Checkpoint, error)

	// Advance moves the checkpoint forward. Advancing to a value at or
	// below the current checkpoint is a no-op; the checkpoint never
	// regresses.
	Advance(ctx context.Context, blockNumber uint64) error
}

// FailedBlockRepository tracks blocks that failed scanning.
type FailedBlockRepository interface {
	// Add records a failed block, incrementing the retry count if the
	// block is already tracked.
	Add(ctx context.Context, fb *domain.FailedBlock) error

	// GetAll retrieves all tracked failed blocks.
	GetAll(ctx context.Context) ([]*domain.FailedBlock, error)

	// Resolve removes a failed block after a successful rescan.
	Resolve(ctx context.Context, blockNumber uint64) error
}
